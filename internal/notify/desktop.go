package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/gen2brain/beeep"

	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// SendFunc delivers one desktop notification.
type SendFunc func(title, message string) error

// Desktop shows notifications through the operating system's notification
// center: D-Bus or notify-send on Linux and BSD, Notification Center on
// macOS and toast notifications on Windows.
type Desktop struct {
	send   SendFunc
	bell   io.Writer
	logger *logging.Logger
}

// NewDesktop creates a Desktop notifier. A non-nil bell receives the BEL
// character for urgent notifications.
func NewDesktop(bell io.Writer, logger *logging.Logger) *Desktop {
	beeep.AppName = "sharedsave"
	return NewDesktopWithSender(func(title, message string) error {
		return beeep.Notify(title, message, "")
	}, bell, logger)
}

// NewDesktopWithSender creates a Desktop notifier that delivers through send.
func NewDesktopWithSender(send SendFunc, bell io.Writer, logger *logging.Logger) *Desktop {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Desktop{send: send, bell: bell, logger: logger.WithComponent("notify")}
}

// Notify implements Notifier. The action, if any, is rendered as the
// command that answers it.
func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	if n.Urgent && d.bell != nil {
		_, _ = io.WriteString(d.bell, "\a")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := n.Message
	if n.Action != nil {
		body += fmt.Sprintf("\n%s: sharedsave respond %s", n.Action.Label, n.Action.Token)
	}

	if err := d.send(n.Title, body); err != nil {
		return fmt.Errorf("desktop notification %s: %w", n.Kind, err)
	}
	d.logger.Debug("desktop notification shown", "kind", string(n.Kind))
	return nil
}

package process

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/shell"
)

// Launcher starts the target application.
type Launcher struct {
	path    string
	goos    string
	starter shell.Starter
	logger  *logging.Logger
}

// NewLauncher creates a Launcher for the application at path.
func NewLauncher(path string, logger *logging.Logger) *Launcher {
	return NewLauncherWithStarter(path, runtime.GOOS, shell.NewCLICommandExecutor(), logger)
}

// NewLauncherWithStarter creates a Launcher for goos with a custom starter.
func NewLauncherWithStarter(path, goos string, starter shell.Starter, logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Launcher{path: path, goos: goos, starter: starter, logger: logger.WithComponent("launcher")}
}

// Open starts the application without waiting for it. macOS bundles are
// opened with `open`; anything else is executed directly from its own
// directory.
func (l *Launcher) Open() error {
	if strings.TrimSpace(l.path) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "no launch path configured")
	}

	var err error
	if l.goos == "darwin" && strings.HasSuffix(strings.TrimRight(l.path, "/"), ".app") {
		err = l.starter.Start("", "open", l.path)
	} else {
		err = l.starter.Start(filepath.Dir(l.path), l.path)
	}
	if err != nil {
		return errors.Wrapf(err, "launch %s", l.path)
	}
	l.logger.Info("application launched", "path", l.path)
	return nil
}

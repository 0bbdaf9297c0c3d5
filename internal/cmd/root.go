package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sharedsave/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sharedsave",
	Short: "Share one save game between several players, one at a time",
	Long: `sharedsave keeps a single save game in a git repository and makes sure
only one player has it at a time. While the game runs, the active client
publishes a heartbeat to a shared Redis store; other clients see it and
stay in offline mode until the heartbeat goes stale.

Start the daemon with 'sharedsave run'. First-time users should run
'sharedsave config init' and 'sharedsave setup'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/sharedsave/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Credentials such as SHAREDSAVE_REMOTE_REDIS_URL may live in a .env
	// next to the config file. Real environment variables win.
	_ = godotenv.Load(config.EnvFile())

	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SHAREDSAVE")
	// e.g. SHAREDSAVE_SYNC_SAVES_DIR for sync.saves_dir
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

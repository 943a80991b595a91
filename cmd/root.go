package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the drivebkup application
var rootCmd = &cobra.Command{
	Use:   "drivebkup",
	Short: "Backs up local files to Google Drive",
	Long: `drivebkup uploads files and directory trees to Google Drive and
downloads them back.

Credentials are kept in a token file. When it is missing or can no longer be
refreshed, an interactive browser authorization is run using the client
registration file downloaded from the Google Cloud Console.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globals holds the persistent flags shared by every subcommand.
var globals globalFlags

type globalFlags struct {
	configPath       string
	tokenFile        string
	registrationFile string
	logDir           string
	logLevel         string
	downloadDir      string
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "drivebkup version %s\n" .Version}}`)

	// Interrupts cancel in-flight transfers; the interactive authorization
	// wait is aborted the same way.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		cancel()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/drivebkup/config.toml). Can also use DRIVEBKUP_CONFIG env var.")
	pf.StringVar(&globals.tokenFile, "token-file", "", "OAuth token file. Can also use GOOGLE_DRIVE_CLIENT_TOKEN env var.")
	pf.StringVar(&globals.registrationFile, "registration-file", "", "OAuth client registration JSON. Can also use GOOGLE_DRIVE_CLIENT_REGISTRATION env var.")
	pf.StringVar(&globals.logDir, "log-dir", "", "Directory for drivebkup.log. Can also use DRIVEBKUP_LOG_DIR env var.")
	pf.StringVar(&globals.logLevel, "log-level", "", "Log level: debug, info, warn or error. Can also use DRIVEBKUP_LOG_LEVEL env var.")
	pf.StringVar(&globals.downloadDir, "download-dir", "", "Directory receiving downloads. Can also use DRIVEBKUP_DOWNLOAD_DIR env var.")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newMetaCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newSharedDrivesCmd())
	rootCmd.AddCommand(newListFilesCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newVersionCmd())
}

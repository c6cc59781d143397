package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"kptnexport/pkg/auth"
	"kptnexport/pkg/config"
	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var skipVerify bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage KptnCook credentials",
	Long: `Manage stored KptnCook credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Store KptnCook credentials securely",
	Long: `Store your KptnCook e-mail, password and API key in the system keychain
or an encrypted file. The login is tried against KptnCook before it is saved
unless --skip-verify is given.`,
	Example: `  # Interactive login
  kptnexport auth login

  # Login with e-mail
  kptnexport auth login cook@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [email]",
	Short: "Remove stored credentials",
	Long: `Remove stored KptnCook credentials.

If no e-mail is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored KptnCook accounts with masked secrets.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store the credentials without trying them")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowLoginGuide(os.Stdout)
	fmt.Println()

	var email string
	if len(args) > 0 {
		email = strings.TrimSpace(args[0])
	}
	if email == "" {
		fmt.Print("E-mail: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read e-mail: %w", err)
		}
		email = strings.TrimSpace(input)
	}
	if email == "" {
		return errors.New("e-mail is required")
	}

	if existing, _ := manager.Retrieve(email); existing != nil {
		fmt.Printf("\nAccount '%s' already exists. Update credentials? (y/N): ", email)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Password: ")
	password, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("API key (press Enter to use KPTNCOOK_API_KEY): ")
	apiKey, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	account := &auth.Account{
		Email:        email,
		Password:     password,
		APIKey:       apiKey,
		LastModified: time.Now(),
	}
	if err := account.Validate(); err != nil {
		return err
	}

	if !skipVerify {
		if err := verifyLogin(cmd.Context(), account); err != nil {
			return err
		}
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess("Account saved: " + email)
	fmt.Println("\nStart an export with:")
	fmt.Println("  $ kptnexport export")
	fmt.Printf("  $ kptnexport export --account %s --format markdown\n", email)
	return nil
}

// verifyLogin tries the credentials against the API. Without an API key
// there is nothing to try, so the check is skipped.
func verifyLogin(ctx context.Context, account *auth.Account) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if account.APIKey != "" {
		cfg.KptnCook.APIKey = account.APIKey
	}
	if cfg.KptnCook.APIKey == "" {
		ui.PrintWarning("No API key available, skipping login check")
		return nil
	}

	client := kptncook.NewClient(&cfg.KptnCook, kptncook.WithLogger(logger.NewNopLogger()))
	fmt.Println("\nChecking login...")
	if err := client.Login(ctx, account.Email, account.Password); err != nil {
		return fmt.Errorf("login check failed: %w", err)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) == 1 {
		if err := manager.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		ui.PrintSuccess("Account removed: " + args[0])
		return nil
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "nothing to remove")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Email)
	}
	fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	switch {
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
		confirm, _ := reader.ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return fmt.Errorf("failed to remove all accounts: %w", err)
		}
		ui.PrintSuccess("All accounts removed")
	case choice > 0 && choice <= len(accounts):
		email := accounts[choice-1].Email
		if err := manager.Delete(email); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		ui.PrintSuccess("Account removed: " + email)
	default:
		return errors.New("invalid choice")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'kptnexport auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. E-mail: %s\n", i+1, sanitized.Email)
		fmt.Printf("   Password: %s\n", sanitized.Password)
		if sanitized.APIKey != "" {
			fmt.Printf("   API key: %s\n", sanitized.APIKey)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

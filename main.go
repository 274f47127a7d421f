package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/richardnoragon/budgetauth/internal/config"
	"github.com/richardnoragon/budgetauth/internal/database"
	"github.com/richardnoragon/budgetauth/internal/logger"
	"github.com/richardnoragon/budgetauth/internal/models"
	"github.com/richardnoragon/budgetauth/internal/monitoring"
	pw "github.com/richardnoragon/budgetauth/internal/password"
	"github.com/richardnoragon/budgetauth/internal/services"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const maxLoginAttempts = 3

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)

	// Ensure the directory holding the database exists
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create database directory")
		}
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up services
	userService := services.NewUserService(db)
	profileService := services.NewProfileService(db)
	sessionService := services.NewSessionService(db)
	backupService := services.NewBackupService(db, cfg.BackupPath)

	authService := services.NewAuthService(userService, profileService, sessionService, backupService,
		time.Duration(cfg.SessionTimeoutHours)*time.Hour)

	if err := authService.Bootstrap(); err != nil {
		log.Fatal().Err(err).Msg("Bootstrap failed")
	}

	// Automatic backups are optional; an empty schedule disables them.
	if cfg.BackupSchedule != "" {
		scheduler := monitoring.NewScheduler(backupService, cfg.BackupSchedule, 10)
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.BackupSchedule).Msg("Invalid backup schedule")
		}
		defer scheduler.Stop()
	}

	runConsole(authService)
}

// runConsole is the interactive shell the desktop GUI would otherwise be.
func runConsole(auth services.AuthServiceProvider) {
	fmt.Println("ProjectBudgetinator account console. Type 'help' for commands.")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print(prompt(auth))
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			printHelp()
		case "login":
			doLogin(auth, reader)
		case "logout":
			if !auth.Logout() {
				fmt.Println("Logged out, but the stored session could not be removed.")
			} else {
				fmt.Println("Logged out.")
			}
		case "whoami":
			doWhoami(auth)
		case "users":
			doListUsers(auth)
		case "adduser":
			doAddUser(auth, reader)
		case "passwd":
			doChangePassword(auth)
		case "profiles":
			doListProfiles(auth)
		case "mkprofile":
			doCreateProfile(auth, args)
		case "rmprofile":
			doDeleteProfile(auth, args)
		case "setdefault":
			doSetDefault(auth, args)
		case "switch":
			doSwitch(auth, args)
		case "envs":
			fmt.Println(strings.Join(auth.EnvironmentTypes(), ", "))
		case "pref":
			doPref(auth, args)
		case "backup":
			doBackup(auth, args)
		case "quit", "exit":
			auth.Logout()
			return
		default:
			fmt.Printf("Unknown command %q. Type 'help' for commands.\n", cmd)
		}
		auth.UpdateActivity()
	}
}

func prompt(auth services.AuthServiceProvider) string {
	if user := auth.CurrentUser(); user != nil {
		if profile := auth.CurrentProfile(); profile != nil {
			return fmt.Sprintf("%s@%s> ", user.Username, profile.Name)
		}
		return fmt.Sprintf("%s> ", user.Username)
	}
	return "> "
}

func printHelp() {
	fmt.Print(`Commands:
  login                   authenticate (3 attempts)
  logout                  end the current session
  whoami                  show current user and profile
  users                   list accounts
  adduser                 create an account
  passwd                  change the current user's password
  profiles                list the current user's profiles
  mkprofile <name> <env>  create a profile
  rmprofile <id>          delete a profile
  setdefault <id>         mark a profile as default
  switch <id>             switch the active profile
  envs                    list environment types
  pref get <key>          read a preference from the active profile
  pref set <key> <value>  write a preference (bools and ints are detected)
  backup [dir]            back up the database
  quit                    exit
`)
}

// doLogin enforces the bounded retry policy here, in the caller: the auth
// layer itself has no attempt counter.
func doLogin(auth services.AuthServiceProvider, reader *bufio.Reader) {
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		fmt.Print("Username: ")
		username, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		password, err := readPassword("Password: ")
		if err != nil {
			fmt.Println("Could not read password.")
			return
		}

		if token := auth.Login(strings.TrimSpace(username), password); token != "" {
			fmt.Println("Login successful.")
			if auth.IsUsingDefaultPassword() {
				if auth.IsCurrentUserAdmin() {
					fmt.Println("Note: the admin account always uses the default password.")
				} else {
					fmt.Println("You are using the default password. Run 'passwd' to change it.")
				}
			}
			level, _ := auth.GetPreference(models.PrefDiagnosticLevel, "standard").(string)
			monitoring.LogStartupDiagnostics(level)
			return
		}
		// One message for every failure mode.
		fmt.Println("Invalid credentials.")
	}
	fmt.Println("Too many failed attempts.")
}

func doWhoami(auth services.AuthServiceProvider) {
	user := auth.CurrentUser()
	if user == nil {
		fmt.Println("Not logged in.")
		return
	}
	fmt.Printf("User: %s", user.Username)
	if auth.IsCurrentUserAdmin() {
		fmt.Print(" (admin)")
	}
	fmt.Println()
	if profile := auth.CurrentProfile(); profile != nil {
		fmt.Printf("Profile: %s [%s]\n", profile.Name, profile.Environment)
	}
}

func doListUsers(auth services.AuthServiceProvider) {
	users, err := auth.GetAllUsers()
	if err != nil {
		fmt.Printf("Could not list users: %v\n", err)
		return
	}
	for _, u := range users {
		last := "never"
		if u.LastLogin != nil {
			last = u.LastLogin.Local().Format(time.RFC822)
		}
		fmt.Printf("  %-20s last login: %s\n", u.Username, last)
	}
}

func doAddUser(auth services.AuthServiceProvider, reader *bufio.Reader) {
	fmt.Print("New username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	password, err := readPassword("Password (blank for default): ")
	if err != nil {
		return
	}
	if password == "" {
		password = pw.DefaultPassword
	}
	user, err := auth.CreateUser(strings.TrimSpace(username), password, "", "")
	if err != nil {
		fmt.Printf("Could not create user: %v\n", err)
		return
	}
	fmt.Printf("Created %s with a default Personal profile.\n", user.Username)
}

func doChangePassword(auth services.AuthServiceProvider) {
	oldPassword, err := readPassword("Current password: ")
	if err != nil {
		return
	}
	newPassword, err := readPassword("New password: ")
	if err != nil {
		return
	}
	if auth.ChangePassword(oldPassword, newPassword) {
		fmt.Println("Password changed.")
	} else {
		fmt.Println("Password change failed.")
	}
}

func doListProfiles(auth services.AuthServiceProvider) {
	profiles := auth.GetUserProfiles()
	if profiles == nil {
		fmt.Println("Not logged in.")
		return
	}
	current := auth.CurrentProfile()
	for _, p := range profiles {
		marker := " "
		if p.IsDefault {
			marker = "*"
		}
		active := ""
		if current != nil && current.ID == p.ID {
			active = " (active)"
		}
		fmt.Printf("  %s %-20s [%s] %s%s\n", marker, p.Name, p.Environment, p.ID, active)
	}
}

func doCreateProfile(auth services.AuthServiceProvider, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: mkprofile <name> <environment>")
		return
	}
	profile, err := auth.CreateProfile(args[0], args[1])
	if err != nil {
		fmt.Printf("Could not create profile: %v\n", err)
		return
	}
	fmt.Printf("Created profile %s (%s).\n", profile.Name, profile.ID)
}

func doDeleteProfile(auth services.AuthServiceProvider, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: rmprofile <id>")
		return
	}
	if err := auth.DeleteProfile(args[0]); err != nil {
		fmt.Printf("Could not delete profile: %v\n", err)
		return
	}
	fmt.Println("Profile deleted.")
}

func doSetDefault(auth services.AuthServiceProvider, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: setdefault <id>")
		return
	}
	if err := auth.SetDefaultProfile(args[0]); err != nil {
		fmt.Printf("Could not set default profile: %v\n", err)
		return
	}
	fmt.Println("Default profile updated.")
}

func doSwitch(auth services.AuthServiceProvider, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: switch <id>")
		return
	}
	if !auth.SwitchProfile(args[0]) {
		fmt.Println("Could not switch profile.")
		return
	}
	profile := auth.CurrentProfile()
	fmt.Printf("Switched to %s [%s].\n", profile.Name, profile.Environment)
}

func doPref(auth services.AuthServiceProvider, args []string) {
	switch {
	case len(args) == 2 && args[0] == "get":
		fmt.Printf("%s = %v\n", args[1], auth.GetPreference(args[1], "<unset>"))
	case len(args) == 3 && args[0] == "set":
		if !auth.SetPreference(args[1], parseValue(args[2])) {
			fmt.Println("Could not set preference.")
			return
		}
		fmt.Println("Preference saved.")
	default:
		fmt.Println("Usage: pref get <key> | pref set <key> <value>")
	}
}

func doBackup(auth services.AuthServiceProvider, args []string) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := auth.BackupDatabase(dir)
	if err != nil {
		fmt.Printf("Backup failed: %v\n", err)
		return
	}
	fmt.Printf("Backup written to %s\n", path)
}

// parseValue maps console input to the type a preference expects.
func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func readPassword(promptText string) (string, error) {
	fmt.Print(promptText)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

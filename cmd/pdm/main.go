package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"pdm-go/internal/app"
	"pdm-go/internal/config"
	"pdm-go/internal/encryption"
	"pdm-go/internal/identity"
	"pdm-go/internal/pdm"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PDMApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Checkout").
func newApp(operation string) (*app.PDMApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewPDMApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:           "pdm",
	Short:         "Product data management over a shared repository",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		clientID := uuid.New().String()
		cfg := config.NewConfig(clientID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Client ID: %s\n", clientID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		fmt.Println("Set [repo] remote_url before first use.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Client ID:  %s\n", cfg.ClientID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Remote URL: %s\n", cfg.Repo.RemoteURL)
		fmt.Printf("Branch:     %s\n", cfg.Repo.Branch)
		fmt.Printf("Work Dir:   %s\n", cfg.Repo.WorkDir)
		return nil
	},
}

// keys command

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PublicKeyPath)
		}

		pass, err := promptPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		fmt.Println("Set enabled = true under [encryption] to encrypt new content.")
		return nil
	},
}

// file commands

var addDescription string

var addCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Register a file under management",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name := filepath.Base(path)

		a, err := newApp("AddFile")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer f.Close()

			if err := a.Service().AddFile(ctx, actor, name, addDescription, f); err != nil {
				return err
			}
			fmt.Printf("Added %s\n", name)
			return nil
		})
	},
}

var filesVerbose bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List managed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListFiles")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run("", func(ctx context.Context) error {
			views, err := a.Service().ListFiles(ctx)
			if err != nil {
				return err
			}
			for _, v := range views {
				status := "available"
				if v.Lock != nil {
					status = fmt.Sprintf("checked out by %s since %s", v.Lock.LockedBy, v.Lock.LockedAt.Format(time.RFC3339))
				}
				line := fmt.Sprintf("%-30s rev %-3d %s", v.Filename, v.Revision, status)
				if v.Mismatch {
					line += "  [revision label differs from part]"
				}
				fmt.Println(line)
				if filesVerbose {
					fmt.Printf("    author: %s  part: %s  created: %s\n", v.Author, v.PartNumber, v.CreatedAt.Format(time.RFC3339))
					if v.Description != "" {
						fmt.Printf("    %s\n", v.Description)
					}
				}
			}
			return nil
		})
	},
}

var checkoutMessage string

var checkoutCmd = &cobra.Command{
	Use:   "checkout FILE",
	Short: "Check out a file for exclusive editing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("Checkout")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().Checkout(ctx, actor, name, checkoutMessage); err != nil {
				return err
			}
			fmt.Printf("Checked out %s\n", name)
			return nil
		})
	},
}

var (
	checkinMessage string
	checkinFile    string
)

var checkinCmd = &cobra.Command{
	Use:   "checkin FILE",
	Short: "Check in a file, releasing the lock and bumping its revision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("Checkin")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}

			var content io.Reader
			if checkinFile != "" {
				f, err := os.Open(checkinFile)
				if err != nil {
					return fmt.Errorf("opening %s: %w", checkinFile, err)
				}
				defer f.Close()
				content = f
			}

			rev, err := a.Service().Checkin(ctx, actor, name, checkinMessage, content)
			if err != nil {
				return err
			}
			fmt.Printf("Checked in %s as revision %d\n", name, rev)
			return nil
		})
	},
}

var releaseForce bool

var releaseCmd = &cobra.Command{
	Use:   "release FILE",
	Short: "Release a checkout without a revision bump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("Release")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().Release(ctx, actor, name, releaseForce); err != nil {
				return err
			}
			fmt.Printf("Released %s\n", name)
			return nil
		})
	},
}

var openOutput string

var openCmd = &cobra.Command{
	Use:   "open FILE",
	Short: "Download a file's current content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("OpenFile")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			var dec pdm.DecryptionContext
			if a.EncryptionEnabled() {
				pass, err := promptPassphrase("Passphrase: ")
				if err != nil {
					return err
				}
				dec, err = a.Unlock(pass)
				if err != nil {
					return fmt.Errorf("unlocking private key: %w", err)
				}
			}

			out := os.Stdout
			if openOutput != "" {
				f, err := os.Create(openOutput)
				if err != nil {
					return fmt.Errorf("creating %s: %w", openOutput, err)
				}
				defer f.Close()
				out = f
			}
			if err := a.Service().OpenFile(ctx, name, out, dec); err != nil {
				return err
			}
			if openOutput != "" {
				fmt.Fprintf(os.Stderr, "Wrote %s\n", openOutput)
			}
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm FILE",
	Short: "Delete a managed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("DeleteFile")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().DeleteFile(ctx, actor, name); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", name)
			return nil
		})
	},
}

var describeDescription string

var describeCmd = &cobra.Command{
	Use:   "describe FILE",
	Short: "Edit a file's description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		a, err := newApp("EditDescription")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(name, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().EditDescription(ctx, actor, name, describeDescription); err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", name)
			return nil
		})
	},
}

// part commands

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "List parts and their files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListParts")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run("", func(ctx context.Context) error {
			views, err := a.Service().ListParts(ctx)
			if err != nil {
				return err
			}
			for _, v := range views {
				rev := v.CurrentRev
				if rev == "" {
					rev = "-"
				}
				fmt.Printf("%s  current rev %-4s %s\n", v.Number, rev, v.Description)
				for _, f := range v.Files {
					fmt.Printf("    %s\n", f)
				}
			}
			return nil
		})
	},
}

var partCmd = &cobra.Command{
	Use:   "part",
	Short: "Manage part records",
}

var partSetRevCmd = &cobra.Command{
	Use:   "set-rev PART REV",
	Short: "Designate a part's current revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		part, rev := args[0], args[1]
		a, err := newApp("SetPartRevision")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(part, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().SetPartRevision(ctx, actor, part, rev); err != nil {
				return err
			}
			fmt.Printf("Part %s current revision is now %s\n", part, rev)
			return nil
		})
	},
}

var partDescription string

var partDescribeCmd = &cobra.Command{
	Use:   "describe PART",
	Short: "Edit a part's description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		part := args[0]
		a, err := newApp("EditPartDescription")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(part, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().EditPartDescription(ctx, actor, part, partDescription); err != nil {
				return err
			}
			fmt.Printf("Updated part %s\n", part)
			return nil
		})
	},
}

// subscription commands

var subscribeCmd = &cobra.Command{
	Use:   "subscribe PART",
	Short: "Subscribe to change notifications for a part",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		part := args[0]
		a, err := newApp("Subscribe")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(part, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().Subscribe(ctx, actor, part); err != nil {
				return err
			}
			fmt.Printf("Subscribed to part %s\n", part)
			return nil
		})
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe PART",
	Short: "Unsubscribe from a part's notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		part := args[0]
		a, err := newApp("Unsubscribe")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(part, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().Unsubscribe(ctx, actor, part); err != nil {
				return err
			}
			fmt.Printf("Unsubscribed from part %s\n", part)
			return nil
		})
	},
}

var inboxMarkRead bool

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Show notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Inbox")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run("", func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			notes, err := a.Service().Notifications(ctx, actor.Name)
			if err != nil {
				return err
			}
			for _, n := range notes {
				marker := " "
				if !n.IsRead {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, n.Timestamp.Format(time.RFC3339), n.Message)
			}
			if inboxMarkRead {
				marked, err := a.Service().MarkAllRead(ctx, actor)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d notifications read\n", marked)
			}
			return nil
		})
	},
}

// role commands

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage user roles",
}

var roleSetCmd = &cobra.Command{
	Use:   "set USER ROLE",
	Short: "Assign a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		role, err := pdm.ParseRole(args[1])
		if err != nil {
			return err
		}

		a, err := newApp("ChangeRole")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(target, func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			if err := a.Service().ChangeRole(ctx, actor, target, role); err != nil {
				return err
			}
			fmt.Printf("Role of %s is now %s\n", target, role)
			return nil
		})
	},
}

var roleGetCmd = &cobra.Command{
	Use:   "get [USER]",
	Short: "Show a user's effective role (default: yourself)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ResolveRole")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run("", func(ctx context.Context) error {
			actor, err := a.Actor(ctx)
			if err != nil {
				return err
			}
			user := actor.Name
			if len(args) == 1 {
				user = args[0]
			}
			role, err := a.Service().ResolveRole(ctx, user)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", user, role)
			return nil
		})
	},
}

// history commands

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [PATH]",
	Short: "Show the shared audit history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(path, func(ctx context.Context) error {
			commits, err := a.Service().History(ctx, path, logLimit)
			if err != nil {
				return err
			}
			for _, c := range commits {
				fmt.Printf("%s  %s  %s\n", c.Hash[:12], c.When.Format("2006-01-02 15:04"), c.Message)
			}
			return nil
		})
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent local operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Journal")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(historyLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-18s %-10s %s", e.StartedAt.Format("2006-01-02 15:04:05"), e.Operation, e.Status, e.Target)
			if e.ErrorKind != "" {
				line += "  (" + e.ErrorKind + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// token command

var (
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage operator tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue USER",
	Short: "Mint a signed token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user := args[0]
		if tokenRole != "" {
			if _, err := pdm.ParseRole(tokenRole); err != nil {
				return err
			}
		}

		cfg, err := readConfig()
		if err != nil {
			return err
		}
		signer, err := identity.NewSignerFromConfig(cfg.Identity)
		if err != nil {
			return err
		}
		token, err := signer.GenerateToken(user, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)

	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "file description")
	filesCmd.Flags().BoolVarP(&filesVerbose, "verbose", "v", false, "show author, part and description")
	checkoutCmd.Flags().StringVarP(&checkoutMessage, "message", "m", "", "checkout message")
	checkoutCmd.MarkFlagRequired("message")
	checkinCmd.Flags().StringVarP(&checkinMessage, "message", "m", "", "checkin message")
	checkinCmd.MarkFlagRequired("message")
	checkinCmd.Flags().StringVarP(&checkinFile, "file", "f", "", "path of new content to check in")
	releaseCmd.Flags().BoolVar(&releaseForce, "force", false, "release another user's lock (admin)")
	openCmd.Flags().StringVarP(&openOutput, "output", "o", "", "write content to a file instead of stdout")
	describeCmd.Flags().StringVarP(&describeDescription, "description", "d", "", "new description")
	describeCmd.MarkFlagRequired("description")

	partCmd.AddCommand(partSetRevCmd)
	partCmd.AddCommand(partDescribeCmd)
	partDescribeCmd.Flags().StringVarP(&partDescription, "description", "d", "", "new description")
	partDescribeCmd.MarkFlagRequired("description")

	inboxCmd.Flags().BoolVar(&inboxMarkRead, "mark-read", false, "mark all notifications read")

	roleCmd.AddCommand(roleSetCmd)
	roleCmd.AddCommand(roleGetCmd)

	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of entries")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", "", "role claim to embed (user, admin, supervisor)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(partsCmd)
	rootCmd.AddCommand(partCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tokenCmd)
}

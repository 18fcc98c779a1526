package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veritaschain/vcp/internal/alert"
	"github.com/veritaschain/vcp/internal/anchor"
	"github.com/veritaschain/vcp/internal/chain"
	"github.com/veritaschain/vcp/internal/config"
	"github.com/veritaschain/vcp/internal/event"
	"github.com/veritaschain/vcp/internal/logfile"
	"github.com/veritaschain/vcp/internal/sign"
	"github.com/veritaschain/vcp/internal/source"
	"github.com/veritaschain/vcp/internal/store"
	"github.com/veritaschain/vcp/internal/verify"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vcp",
	Short: "VCP - Verifiable Chain Protocol",
	Long:  `Tamper-evident event chains: hash-linked JSONL logs, Merkle anchors and a three-layer verifier`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "vcp.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(rechainCmd)
	rootCmd.AddCommand(anchorCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)

	keygenCmd.Flags().StringVar(&keygenKeyID, "key-id", "", "key identifier (default: generated)")
	keygenCmd.Flags().StringVar(&keygenPrivate, "private", "vcp_private.json", "private key output path")
	keygenCmd.Flags().StringVar(&keygenPublic, "public", "vcp_public.json", "public key output path")

	demoCmd.Flags().IntVar(&demoCount, "count", 10, "number of demo trades")
	demoCmd.Flags().StringVar(&demoOut, "out", "", "output log path (default: chain.log_path)")

	convertCmd.Flags().StringVar(&convertOut, "out", "", "output log path (default: chain.log_path)")

	appendCmd.Flags().StringVar(&appendTrace, "trace", "", "trace identifier")
	appendCmd.Flags().StringVar(&appendType, "type", "SIG", "event type")
	appendCmd.Flags().StringVar(&appendPayload, "payload", "", "payload as inline JSON")

	importCmd.Flags().StringVar(&importConn, "conn", "", "PostgreSQL connection string")
	importCmd.Flags().StringVar(&importTable, "table", "", "audit table to import")
	importCmd.MarkFlagRequired("conn")
	importCmd.MarkFlagRequired("table")

	anchorCmd.Flags().StringVar(&anchorOut, "out", "", "anchor JSON output path")
	anchorCmd.Flags().BoolVar(&anchorStamp, "stamp", false, "write the anchor reference back into every covered event")

	verifyCmd.Flags().StringVar(&verifyPubKey, "pubkey", "", "public key file for signature checks")
}

// loadConfig reads the config file, falling back to the strict default
// profile when no file exists at the default path.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if !rootCmd.PersistentFlags().Changed("config") {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("config file not found: %s", cfgFile)
	}
	return config.Load(cfgFile)
}

// signerFromConfig loads the configured private key, or returns a
// disabled signer when none is configured.
func signerFromConfig(cfg *config.Config) (sign.Signer, error) {
	if cfg.Keys.PrivateKeyPath == "" {
		return sign.NoopSigner{}, nil
	}
	signer, err := sign.LoadPrivateKey(cfg.Keys.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	return signer, nil
}

// publicKeyFromConfig resolves the verifier public key: an explicit
// flag wins, then the configured key file, then none (signature checks
// are skipped).
func publicKeyFromConfig(cfg *config.Config, flagPath string) (string, error) {
	path := flagPath
	if path == "" {
		path = cfg.Keys.PublicKeyPath
	}
	if path == "" {
		return "", nil
	}
	info, err := sign.LoadPublicKey(path)
	if err != nil {
		return "", err
	}
	return info.PublicKey, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vcp v1.1.0")
		fmt.Println("Verifiable Chain Protocol")
	},
}

var (
	keygenKeyID   string
	keygenPrivate string
	keygenPublic  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 signing key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID := keygenKeyID
		if keyID == "" {
			keyID = "vcp-" + uuid.NewString()[:8]
		}
		signer, err := sign.NewEd25519Signer(keyID)
		if err != nil {
			return fmt.Errorf("failed to generate key pair: %w", err)
		}

		if err := sign.SavePrivateKey(signer, keygenPrivate); err != nil {
			return err
		}
		if err := sign.SavePublicKey(signer, keygenPublic); err != nil {
			return err
		}

		fmt.Printf("Key ID: %s\n", signer.KeyID())
		fmt.Printf("Public key: %s\n", signer.PublicKey())
		fmt.Printf("Private key written to: %s\n", keygenPrivate)
		fmt.Printf("Public key written to: %s\n", keygenPublic)
		return nil
	},
}

var (
	demoCount int
	demoOut   string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Generate a signed demo chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		out := demoOut
		if out == "" {
			out = cfg.Chain.LogPath
		}

		builder := chain.NewBuilder(chain.Options{
			ChainName: cfg.Chain.Name,
			Producer:  cfg.Chain.Producer,
			Tier:      cfg.Chain.Tier,
			Signer:    signer,
		})

		raws := source.DemoTrades(demoCount, time.Now().Add(-time.Duration(demoCount)*time.Minute))
		events, err := source.AppendAll(builder, raws)
		if err != nil {
			return err
		}

		if err := logfile.WriteEvents(out, events); err != nil {
			return err
		}

		fmt.Printf("Generated %d events (%d trades) -> %s\n", len(events), demoCount, out)
		if signer.Enabled() {
			fmt.Printf("Signed with key: %s\n", signer.KeyID())
		} else {
			fmt.Println("Unsigned (no private key configured)")
		}
		return nil
	},
}

var convertOut string

var convertCmd = &cobra.Command{
	Use:   "convert [csv file]",
	Short: "Convert a decision-log CSV into a hash-linked chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		raws, err := source.ReadCSV(args[0])
		if err != nil {
			return err
		}
		sort.SliceStable(raws, func(i, j int) bool {
			return raws[i].Timestamp.Before(raws[j].Timestamp)
		})

		out := convertOut
		if out == "" {
			out = cfg.Chain.LogPath
		}

		builder := chain.NewBuilder(chain.Options{
			ChainName: cfg.Chain.Name,
			Producer:  cfg.Chain.Producer,
			Tier:      cfg.Chain.Tier,
			Signer:    signer,
		})

		events, err := source.AppendAll(builder, raws)
		if err != nil {
			return err
		}

		if err := logfile.WriteEvents(out, events); err != nil {
			return err
		}

		fmt.Printf("Converted %d rows -> %d chained events -> %s\n", len(raws), len(events), out)
		return nil
	},
}

var (
	appendTrace   string
	appendType    string
	appendPayload string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append one event to the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		var payload event.Payload
		if appendPayload != "" {
			if err := json.Unmarshal([]byte(appendPayload), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}

		// Resume from the log tail so the new event extends the chain.
		var startSeq uint64
		startPrev := ""
		if existing, err := logfile.ReadEvents(cfg.Chain.LogPath); err == nil && len(existing) > 0 {
			last := existing[len(existing)-1]
			startSeq = last.Header.SequenceNumber
			startPrev = last.Security.EventHash
		}

		builder := chain.NewBuilder(chain.Options{
			ChainName:     cfg.Chain.Name,
			Producer:      cfg.Chain.Producer,
			Tier:          cfg.Chain.Tier,
			Signer:        signer,
			StartSequence: startSeq,
			StartPrevHash: startPrev,
		})

		ev, err := builder.Append(chain.Record{
			TraceID:       appendTrace,
			EventType:     appendType,
			EventTypeCode: source.EventTypeCodes[appendType],
			Timestamp:     time.Now(),
			Payload:       payload,
		})
		if err != nil {
			return err
		}

		if err := logfile.AppendEvents(cfg.Chain.LogPath, []event.Event{*ev}); err != nil {
			return err
		}

		fmt.Printf("Appended event %d (%s) to %s\n", ev.Header.SequenceNumber, ev.Header.EventType, cfg.Chain.LogPath)
		fmt.Printf("Event hash: %s\n", ev.Security.EventHash)
		return nil
	},
}

var (
	importConn  string
	importTable string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import rows from a PostgreSQL audit table and append them to the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		// Resume from the persisted head so repeated imports extend the
		// chain instead of restarting it.
		var startSeq uint64
		startPrev := ""
		if head, err := st.GetHead(cfg.Chain.Name); err == nil {
			startSeq = head.Sequence
			startPrev = head.PrevHash
		}

		src, err := source.NewPostgresSource(importConn, importTable)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		raws, err := src.Fetch(ctx)
		if err != nil {
			return err
		}

		builder := chain.NewBuilder(chain.Options{
			ChainName:     cfg.Chain.Name,
			Producer:      cfg.Chain.Producer,
			Tier:          cfg.Chain.Tier,
			Signer:        signer,
			Store:         st,
			StartSequence: startSeq,
			StartPrevHash: startPrev,
		})

		events, err := source.AppendAll(builder, raws)
		if err != nil {
			return err
		}

		if err := logfile.AppendEvents(cfg.Chain.LogPath, events); err != nil {
			return err
		}

		seq, _ := builder.Head()
		fmt.Printf("Imported %d rows from %s -> %s\n", len(raws), importTable, cfg.Chain.LogPath)
		fmt.Printf("Chain head now at sequence %d\n", seq)
		return nil
	},
}

var rechainCmd = &cobra.Command{
	Use:   "rechain [log file]",
	Short: "Re-link a log in timestamp order, recomputing every hash",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		path := cfg.Chain.LogPath
		if len(args) > 0 {
			path = args[0]
		}

		events, err := logfile.ReadEvents(path)
		if err != nil {
			return err
		}

		builder := chain.NewBuilder(chain.Options{
			ChainName: cfg.Chain.Name,
			Producer:  cfg.Chain.Producer,
			Tier:      cfg.Chain.Tier,
			Signer:    signer,
		})

		rechained, err := builder.Rechain(events)
		if err != nil {
			return err
		}

		if err := logfile.WriteEvents(path, rechained); err != nil {
			return err
		}

		fmt.Printf("Re-chained %d events in %s\n", len(rechained), path)
		return nil
	},
}

var (
	anchorOut   string
	anchorStamp bool
)

var anchorCmd = &cobra.Command{
	Use:   "anchor [log file]",
	Short: "Build a signed Merkle anchor over the chain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		signer, err := signerFromConfig(cfg)
		if err != nil {
			return err
		}

		path := cfg.Chain.LogPath
		if len(args) > 0 {
			path = args[0]
		}

		events, err := logfile.ReadEvents(path)
		if err != nil {
			return err
		}

		policy := cfg.VerifyPolicy().OddNodePolicy
		a, err := anchor.Build(events, policy, signer)
		if err != nil {
			return err
		}

		if anchorOut != "" {
			if err := a.WriteFile(anchorOut); err != nil {
				return err
			}
			fmt.Printf("Anchor written to: %s\n", anchorOut)
		}

		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := st.SaveAnchor(cfg.Chain.Name, a); err != nil {
			return err
		}

		if anchorStamp {
			ref := fmt.Sprintf("%s:%d-%d", cfg.Chain.Name, a.FirstSequence, a.LastSequence)
			for i := range events {
				idx := i
				events[i].Security.MerkleRoot = a.Root
				events[i].Security.MerkleIndex = &idx
				events[i].Security.AnchorReference = ref
			}
			if err := logfile.WriteEvents(path, events); err != nil {
				return err
			}
			fmt.Printf("Stamped anchor reference %s into %d events\n", ref, len(events))
		}

		fmt.Printf("Merkle root: %s\n", a.Root)
		fmt.Printf("Covers sequences %d..%d (%d events)\n", a.FirstSequence, a.LastSequence, a.EventCount)
		if a.Signature != "" {
			fmt.Printf("Signed with key: %s\n", a.KeyID)
		}
		return nil
	},
}

var verifyPubKey string

var verifyCmd = &cobra.Command{
	Use:   "verify [log file]",
	Short: "Verify chain integrity, Merkle aggregation and signatures",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		path := cfg.Chain.LogPath
		if len(args) > 0 {
			path = args[0]
		}

		publicKey, err := publicKeyFromConfig(cfg, verifyPubKey)
		if err != nil {
			return err
		}

		verifier := verify.NewVerifier(cfg.VerifyPolicy(), publicKey)
		report, err := verifier.VerifyFile(path)
		if err != nil {
			return err
		}

		printReport(report)

		if !report.Valid {
			cmd.SilenceUsage = true
			return fmt.Errorf("chain verification failed")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously re-verify the log and alert on tampering",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		publicKey, err := publicKeyFromConfig(cfg, "")
		if err != nil {
			return err
		}

		verifier := verify.NewVerifier(cfg.VerifyPolicy(), publicKey)
		alerter := alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook)
		watcher := verify.NewWatcher(verifier, cfg.Chain.LogPath, cfg.WatchInterval(), alerter, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watcher.Start(ctx)
		fmt.Printf("Watching %s every %s. Press Ctrl+C to stop.\n", cfg.Chain.LogPath, cfg.WatchInterval())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		watcher.Stop()
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display chain head and latest anchor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		st, err := store.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		fmt.Printf("Chain: %s\n", cfg.Chain.Name)
		fmt.Printf("Log file: %s\n", cfg.Chain.LogPath)

		head, err := st.GetHead(cfg.Chain.Name)
		if err != nil {
			fmt.Println("Head: no entries yet")
		} else {
			fmt.Printf("Head: sequence %d\n", head.Sequence)
			fmt.Printf("Head hash: %s\n", head.PrevHash)
			fmt.Printf("Updated: %s\n", head.UpdatedAt.Format(time.RFC3339))
		}

		a, err := st.GetLatestAnchor(cfg.Chain.Name)
		if err != nil {
			fmt.Println("Anchors: none")
		} else {
			fmt.Printf("\nLatest anchor:\n")
			fmt.Printf("  Root: %s\n", a.Root)
			fmt.Printf("  Range: %d..%d\n", a.FirstSequence, a.LastSequence)
			fmt.Printf("  Timestamp: %s\n", a.Timestamp)
		}

		return nil
	},
}

// printReport renders the verification report for humans.
func printReport(r *verify.Report) {
	fmt.Println("============================================================")
	fmt.Println(" CHAIN VERIFICATION REPORT")
	fmt.Println("============================================================")
	if r.File != "" {
		fmt.Printf("File: %s\n", r.File)
	}
	fmt.Printf("Events: %d  Traces: %d\n", r.TotalEvents, r.UniqueTraces)
	if len(r.EventTypes) > 0 {
		types := make([]string, 0, len(r.EventTypes))
		for t := range r.EventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Print("Event types:")
		for _, t := range types {
			fmt.Printf(" %s=%d", t, r.EventTypes[t])
		}
		fmt.Println()
	}
	fmt.Printf("Merkle root: %s\n", r.MerkleRoot)
	fmt.Println("------------------------------------------------------------")

	for _, res := range r.Results {
		mark := "✅"
		switch res.Status {
		case verify.Fail:
			mark = "❌"
		case verify.Skipped:
			mark = "⏭️"
		}
		if res.Detail != "" {
			fmt.Printf("  %s %-24s %s (%s)\n", mark, res.Check, res.Status, res.Detail)
		} else {
			fmt.Printf("  %s %-24s %s\n", mark, res.Check, res.Status)
		}
	}

	if len(r.Findings) > 0 {
		fmt.Println("------------------------------------------------------------")
		fmt.Println("Findings:")
		for _, f := range r.Findings {
			fmt.Printf("  %s\n", f.String())
		}
		if r.DroppedFindings > 0 {
			fmt.Printf("  ... %d further findings not shown\n", r.DroppedFindings)
		}
	}

	fmt.Println("============================================================")
	if r.Valid {
		fmt.Println(" VERDICT: PASS - chain is intact")
	} else {
		fmt.Println(" VERDICT: FAIL - chain integrity violated")
	}
	fmt.Println("============================================================")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

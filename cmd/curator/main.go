package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curator/internal/config"
	"curator/internal/ingest"
	"curator/internal/judge"
	"curator/internal/logging"
	"curator/internal/merge"
	"curator/internal/pipeline"
	"curator/internal/scanner"
	"curator/internal/steering"
	"curator/internal/store"
	"curator/internal/synth"
	"curator/internal/types"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// Styles for terminal output
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	safeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	unsafeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	reviewStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "curator - community tip curation for AI assistant configuration",
	Long: `curator maintains a reviewed configuration document for an AI coding
assistant out of community tips.

Tips are ingested from pre-fetched feed dumps, run through a two-stage
safety scan (a deterministic rule table plus a language-model judge),
and queued for human review. Approved tips are synthesized into
instruction blocks and merged into the steering document as proposed
changes; nothing ever lands in the live document without review.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			if workspace, err = os.Getwd(); err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		logging.Initialize(workspace)

		cfg, err = config.Load(workspace)
		if err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Read feed dumps, filter candidates, and queue new tips",
	RunE:  runIngest,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the safety scan over unscanned pending tips",
	RunE:  runScan,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending tips with their verdicts",
	RunE:  runPending,
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one tip in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var approveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a scanned pending tip",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a pending tip",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

var integrateCmd = &cobra.Command{
	Use:   "integrate [id]",
	Short: "Synthesize an approved tip and propose the merged document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntegrate,
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List approved tips",
	RunE:  runLibrary,
}

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump approved tips as JSON files",
	RunE:  runExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runStats,
}

var syncTarget string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Point the active configuration link at the accepted document",
	RunE:  runSync,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")

	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the tip was rejected")
	syncCmd.Flags().StringVar(&syncTarget, "target", "", "document to activate (default: steering global file)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "export directory (default: <workspace>/.curator/export)")

	rootCmd.AddCommand(ingestCmd, scanCmd, pendingCmd, showCmd,
		approveCmd, rejectCmd, integrateCmd, libraryCmd, exportCmd, statsCmd, syncCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, unsafeStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// openStore opens the tip queue for the current workspace.
func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Store.DatabasePath)
}

// judgeClient builds an LLM client from config. Commands that can run
// without a judge pass required=false and get nil back on any setup
// failure.
func judgeClient(ctx context.Context, required bool) (judge.LLMClient, error) {
	client, err := judge.NewClientFromConfig(ctx, cfg)
	if err != nil {
		if required {
			return nil, err
		}
		logger.Warn("judge client unavailable, continuing without it", zap.Error(err))
		return nil, nil
	}
	return client, nil
}

func lockPath() string {
	return filepath.Join(workspace, ".curator", "integrate.lock")
}

func runIngest(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p := &pipeline.Pipeline{Store: st}
	src := ingest.NewFeedDir(cfg.Ingest.FeedDir)
	filter := ingest.NewFilter(cfg.Ingest)

	res, err := p.Ingest(cmd.Context(), src, filter)
	if err != nil {
		return err
	}

	logger.Info("ingest complete",
		zap.Int("read", res.Read),
		zap.Int("accepted", res.Accepted),
		zap.Int("stored", res.Stored),
		zap.Int("duplicates", res.Duplicates))

	fmt.Printf("%s read=%d accepted=%d stored=%d duplicates=%d\n",
		headerStyle.Render("Ingest:"), res.Read, res.Accepted, res.Stored, res.Duplicates)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var semantic *scanner.SemanticScanner
	if cfg.Scanner.UseLLM {
		client, err := judgeClient(cmd.Context(), false)
		if err != nil {
			return err
		}
		scanTimeout, _ := cfg.ScanTimeout()
		semantic = scanner.NewSemanticScanner(client, scanTimeout)
	}

	p := &pipeline.Pipeline{
		Store:         st,
		Semantic:      semantic,
		MaxConcurrent: cfg.Scanner.MaxConcurrent,
		UseLLM:        cfg.Scanner.UseLLM,
	}

	res, err := p.Scan(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s %d scanned: %s %d  %s %d  %s %d\n",
		headerStyle.Render("Scan:"), res.Scanned,
		safeStyle.Render("SAFE"), res.Verdicts[types.VerdictSafe],
		unsafeStyle.Render("UNSAFE"), res.Verdicts[types.VerdictUnsafe],
		reviewStyle.Render("NEEDS_REVIEW"), res.Verdicts[types.VerdictNeedsReview])

	for id, ferr := range res.Failures {
		fmt.Printf("  %s %s: %v\n", unsafeStyle.Render("failed"), idStyle.Render(id), ferr)
	}
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tips, err := st.ListByStatus(types.StatusPending)
	if err != nil {
		return err
	}
	if len(tips) == 0 {
		fmt.Println(dimStyle.Render("No pending tips."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Pending tips (%d):", len(tips))))
	for _, tip := range tips {
		fmt.Printf("  %s  %s  %-12s %s\n",
			idStyle.Render(tip.ID[:8]), verdictBadge(tip.Verdict),
			tip.Source, truncate(tip.Title, 60))
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tip, err := st.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(tip.Title))
	fmt.Printf("id:        %s\n", tip.ID)
	fmt.Printf("source:    %s (%s)\n", tip.Source, tip.NativeID)
	fmt.Printf("category:  %s\n", tip.Category)
	fmt.Printf("status:    %s\n", tip.Status)
	fmt.Printf("verdict:   %s\n", verdictBadge(tip.Verdict))
	if tip.Rationale != "" {
		fmt.Printf("rationale: %s\n", tip.Rationale)
	}
	if tip.Origin.URL != "" {
		fmt.Printf("origin:    %s (score %d, by %s)\n", tip.Origin.URL, tip.Origin.Score, tip.Origin.Author)
	}
	if tip.RejectionReason != "" {
		fmt.Printf("rejected:  %s\n", tip.RejectionReason)
	}
	fmt.Println()
	fmt.Println(tip.RawText)
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Approve(args[0]); err != nil {
		if errors.Is(err, store.ErrUnsafeTip) {
			return fmt.Errorf("tip %s is UNSAFE and cannot be approved", args[0])
		}
		return err
	}
	fmt.Printf("%s tip %s\n", safeStyle.Render("Approved"), idStyle.Render(args[0]))
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Reject(args[0], rejectReason); err != nil {
		return err
	}
	fmt.Printf("%s tip %s\n", unsafeStyle.Render("Rejected"), idStyle.Render(args[0]))
	return nil
}

func runIntegrate(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// The tip's category picks the steering file its instruction lands in.
	tip, err := st.Get(args[0])
	if err != nil {
		return err
	}

	client, err := judgeClient(cmd.Context(), true)
	if err != nil {
		return err
	}
	judgeTimeout, _ := cfg.JudgeTimeout()

	planner := merge.NewPlanner(client, judgeTimeout)
	planner.DefaultParent = cfg.Steering.DefaultParent

	p := &pipeline.Pipeline{
		Store:       st,
		Synthesizer: synth.New(client, judgeTimeout),
		Planner:     planner,
		Documents:   steering.NewFileSourceForCategory(cfg, tip.Category),
		LockPath:    lockPath(),
	}

	res, err := p.Integrate(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, synth.ErrNoActionableContent) {
			fmt.Println(dimStyle.Render("Tip contains no actionable instruction; nothing proposed."))
			return nil
		}
		return err
	}

	fmt.Printf("%s %s of section %q\n", headerStyle.Render("Planned:"),
		res.Plan.Operation, res.Plan.TargetSectionTitle)
	fmt.Printf("Proposed change written to %s\n", res.BundlePath)
	fmt.Println(dimStyle.Render(res.Plan.Summary))
	return nil
}

func runLibrary(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tips, err := st.ListByStatus(types.StatusApproved)
	if err != nil {
		return err
	}
	if len(tips) == 0 {
		fmt.Println(dimStyle.Render("No approved tips yet."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Approved tips (%d):", len(tips))))
	for _, tip := range tips {
		fmt.Printf("  %s  %-14s %s\n",
			idStyle.Render(tip.ID[:8]), tip.Category, truncate(tip.Title, 60))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	dir := exportDir
	if dir == "" {
		dir = filepath.Join(workspace, ".curator", "export")
	}

	p := &pipeline.Pipeline{Store: st}
	n, err := p.Export(dir)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d approved tips to %s\n", headerStyle.Render("Exported:"), n, dir)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Queue:"))
	fmt.Printf("  pending:      %d\n", stats.Pending)
	fmt.Printf("  approved:     %d\n", stats.Approved)
	fmt.Printf("  rejected:     %d\n", stats.Rejected)
	fmt.Printf("  %s %d\n", unsafeStyle.Render("unsafe:      "), stats.Unsafe)
	fmt.Printf("  %s %d\n", reviewStyle.Render("needs review:"), stats.NeedsReview)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	target := syncTarget
	if target == "" {
		target = cfg.GlobalDocumentPath()
	}

	act := steering.NewActivator(cfg)
	if err := act.Sync(target); err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s\n", headerStyle.Render("Active:"), cfg.Steering.ActiveLink, target)
	return nil
}

func verdictBadge(v types.Verdict) string {
	switch v {
	case types.VerdictSafe:
		return safeStyle.Render("SAFE        ")
	case types.VerdictUnsafe:
		return unsafeStyle.Render("UNSAFE      ")
	case types.VerdictNeedsReview:
		return reviewStyle.Render("NEEDS_REVIEW")
	default:
		return dimStyle.Render("unscanned   ")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

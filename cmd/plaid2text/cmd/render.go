package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/plaid2text/pkg/classifier"
	"github.com/pigeonworks-llc/plaid2text/pkg/config"
	"github.com/pigeonworks-llc/plaid2text/pkg/console"
	"github.com/pigeonworks-llc/plaid2text/pkg/output"
	"github.com/pigeonworks-llc/plaid2text/pkg/pipeline"
	"github.com/pigeonworks-llc/plaid2text/pkg/render"
	"github.com/pigeonworks-llc/plaid2text/pkg/rules"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

var renderFlags struct {
	outputFormat     string
	postingAccount   string
	journalFile      string
	quiet            bool
	tags             bool
	clearScreen      bool
	noMarkPulled     bool
	allTransactions  bool
	fromDate         string
	toDate           string
	defaultExpense   string
	clearedCharacter string
	outputDateFormat string
	currency         string
	mappingFile      string
	templateFile     string
	headersFile      string
	accountsFile     string
	markPolicy       string
}

// renderCmd represents the render command.
var renderCmd = &cobra.Command{
	Use:   "render <account> [outfile|-]",
	Short: "Render stored transactions as journal entries",
	Long: `Render stored transactions of an account as ledger or beancount entries.

This command:
1. Loads the transactions not yet pulled (or all with --all-transactions)
2. Classifies each one with the account's mapping rules
3. Prompts for payee, account and tags when no rule matches
4. Writes the headers file and the entries to outfile (stdout by default)
5. Marks the transactions as pulled

Example:
  plaid2text render boa
  plaid2text render boa 2024-01.beancount --from-date 2024/01/01 --to-date 2024/01/31
  plaid2text render boa - -o ledger --quiet --tags`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.outputFormat, "output-format", "o", "", "output format: ledger or beancount")
	f.StringVarP(&renderFlags.postingAccount, "posting-account", "a", "", "account the transactions are posted against")
	f.StringVarP(&renderFlags.journalFile, "journal-file", "j", "", "journal used for payee and account suggestions")
	f.BoolVarP(&renderFlags.quiet, "quiet", "q", false, "do not prompt when a mapping rule matches")
	f.BoolVarP(&renderFlags.tags, "tags", "t", false, "prompt for tags")
	f.BoolVarP(&renderFlags.clearScreen, "clear-screen", "C", false, "clear the screen before each transaction")
	f.BoolVarP(&renderFlags.noMarkPulled, "no-mark-pulled", "n", false, "do not mark transactions as pulled")
	f.BoolVar(&renderFlags.allTransactions, "all-transactions", false, "include transactions already pulled")
	f.StringVar(&renderFlags.fromDate, "from-date", "", "first date (YYYY-MM-DD or YYYY/MM/DD)")
	f.StringVar(&renderFlags.toDate, "to-date", "", "last date (YYYY-MM-DD or YYYY/MM/DD)")
	f.StringVar(&renderFlags.defaultExpense, "default-expense", "", "account proposed when no rule matches")
	f.StringVar(&renderFlags.clearedCharacter, "cleared-character", "", "cleared flag: * or !")
	f.StringVar(&renderFlags.outputDateFormat, "output-date-format", "", "strftime pattern for entry dates")
	f.StringVar(&renderFlags.currency, "currency", "", "currency of the amounts")
	f.StringVar(&renderFlags.mappingFile, "mapping-file", "", "mapping rules file")
	f.StringVar(&renderFlags.templateFile, "template-file", "", "entry template file")
	f.StringVar(&renderFlags.headersFile, "headers-file", "", "file prepended to the output")
	f.StringVar(&renderFlags.accountsFile, "accounts-file", "", "ledger account directives used for suggestions")
	f.StringVar(&renderFlags.markPolicy, "mark-policy", "", "when to mark transactions pulled: immediate or after-write")
}

// applyRenderFlags overrides account options with the flags set explicitly.
func applyRenderFlags(cmd *cobra.Command, a *config.AccountConfig) {
	changed := cmd.Flags().Changed
	strs := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"output-format", renderFlags.outputFormat, &a.OutputFormat},
		{"posting-account", renderFlags.postingAccount, &a.PostingAccount},
		{"journal-file", renderFlags.journalFile, &a.JournalFile},
		{"default-expense", renderFlags.defaultExpense, &a.DefaultExpense},
		{"cleared-character", renderFlags.clearedCharacter, &a.ClearedCharacter},
		{"output-date-format", renderFlags.outputDateFormat, &a.OutputDateFormat},
		{"currency", renderFlags.currency, &a.Currency},
		{"mapping-file", renderFlags.mappingFile, &a.MappingFile},
		{"template-file", renderFlags.templateFile, &a.TemplateFile},
		{"headers-file", renderFlags.headersFile, &a.HeadersFile},
		{"accounts-file", renderFlags.accountsFile, &a.AccountsFile},
		{"mark-policy", renderFlags.markPolicy, &a.MarkPolicy},
	}
	for _, s := range strs {
		if changed(s.flag) {
			*s.dst = s.value
		}
	}

	if changed("quiet") {
		a.Quiet = renderFlags.quiet
	}
	if changed("tags") {
		a.Tags = renderFlags.tags
	}
	if changed("clear-screen") {
		a.ClearScreen = renderFlags.clearScreen
	}
}

func runRender(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	account := args[0]
	outfile := output.Stdout
	if len(args) > 1 {
		outfile = args[1]
	}
	logger := runLogger(account)

	cfg := loadConfig(cmd, account)
	applyRenderFlags(cmd, &cfg.Account)
	cfg.ResolveFiles()
	if err := cfg.Validate([]string{"account", "nickname"}); err != nil {
		exitOnError(err, "invalid configuration")
	}
	a := cfg.Account

	from, err := optionalDate(renderFlags.fromDate)
	exitOnError(err, "invalid --from-date")
	to, err := optionalDate(renderFlags.toDate)
	exitOnError(err, "invalid --to-date")

	logger.Info("Starting render",
		"format", a.OutputFormat,
		"output", outfile,
		"all_transactions", renderFlags.allTransactions,
		"from", renderFlags.fromDate,
		"to", renderFlags.toDate,
	)

	dialect, err := render.DialectFor(a.OutputFormat)
	exitOnError(err, "invalid output format")

	var tmpl *render.Template
	if a.TemplateFile != "" {
		data, err := os.ReadFile(a.TemplateFile)
		exitOnError(err, "failed to read template file")
		tmpl, err = render.ParseTemplate(string(data))
		exitOnError(err, "invalid template file")
	}

	renderer, err := render.NewRenderer(render.Options{
		Dialect:          dialect,
		Template:         tmpl,
		DateFormat:       a.OutputDateFormat,
		PostingAccount:   a.PostingAccount,
		ClearedCharacter: a.ClearedCharacter,
		Currency:         a.Currency,
		Addons:           a.Addons,
	})
	exitOnError(err, "failed to create renderer")

	logger.Debug("Loading mapping rules", "path", a.MappingFile)
	exitOnError(cfg.Paths.EnsureParentDir(a.MappingFile), "failed to create mapping file directory")
	rs, err := rules.Load(a.MappingFile)
	exitOnError(err, "failed to load mapping file")

	src := render.Sources{JournalFile: a.JournalFile, AccountsFile: a.AccountsFile}
	if err := dialect.Suggest(ctx, src, rs.Suggestions()); err != nil {
		logger.Warn("Some suggestions are unavailable", "error", err)
	}

	header, err := output.ReadHeaders(a.HeadersFile)
	exitOnError(err, "failed to read headers file")

	st, err := openStore(ctx, cfg, logger)
	exitOnError(err, "failed to open transaction store")

	con, err := console.New(os.Stderr, a.ClearScreen)
	if err != nil {
		st.Close()
		exitOnError(err, "failed to open console")
	}

	writer := output.NewFileWriter(outfile, os.Stdout, cfg.Paths)
	if err := writer.Prepare(); err != nil {
		con.Close()
		st.Close()
		exitOnError(err, "failed to prepare output")
	}
	c := classifier.New(rs, classifier.Policy{
		Quiet:          a.Quiet,
		PromptTags:     a.Tags,
		DefaultExpense: a.DefaultExpense,
	}, dialect)
	p := pipeline.New(st, c, renderer, writer, con, logger)

	report, runErr := p.Run(ctx, pipeline.Options{
		Query:      store.Query{From: from, To: to, OnlyNew: !renderFlags.allTransactions},
		NoMark:     renderFlags.noMarkPulled,
		MarkPolicy: a.MarkPolicy,
		Header:     header,
		Fallback:   os.Stderr,
	})

	con.Close()
	if err := st.Close(); err != nil {
		logger.Warn("Failed to close transaction store", "error", err)
	}

	if report != nil {
		logRenderReport(logger, report, writer.Destination(), c.Rules().Path())
	}
	if errors.Is(runErr, classifier.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "\nProcess interrupted")
		os.Exit(1)
	}
	exitOnError(runErr, "render failed")

	if report.Rendered == 0 {
		fmt.Fprintln(os.Stderr, "No transactions to render")
	}
}

func logRenderReport(logger *slog.Logger, r *pipeline.Report, dest, mappingFile string) {
	logger.Info("Render completed",
		"candidates", r.Candidates,
		"rendered", r.Rendered,
		"learned", r.Learned,
		"marked", r.Marked,
		"interrupted", r.Interrupted,
		"output", dest,
	)
	if r.Learned > 0 {
		fmt.Fprintf(os.Stderr, "Learned %d new mapping rules in %s\n", r.Learned, mappingFile)
	}
}

// Package main implements the EduChain command line client. It drives the
// course lifecycle against a ledger node with node-managed accounts:
// create courses, enroll, complete modules, and issue certificates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/config"
	"github.com/educhain-network/educhain-go/internal/coordinator"
	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/internal/gateway"
	"github.com/educhain-network/educhain-go/internal/viewcache"
	"github.com/educhain-network/educhain-go/internal/wallet"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

const usage = `Usage: educhain [flags] <command> [args]

Commands:
  courses                                list all courses
  create <title> <desc> <price> <url> <modules>   create a course
  enroll <course-id>                     enroll in a course
  complete <course-id> <module-index>    complete a module
  certify <course-id>                    issue a completion certificate
  progress <course-id>                   show progress for a course
  certificates                           list owned certificates

Flags:
`

type app struct {
	coord   *coordinator.Coordinator
	gw      *gateway.Gateway
	adapter *wallet.Adapter
	session wallet.Session
	log     *logger.Logger
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "educhain.yaml", "Path to config file")
	account := flag.String("account", "", "Account address to act as (default: first node account)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.NewDefault("educhain")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	ctx := context.Background()

	a, err := setup(ctx, cfg, educhain.AccountID(*account), log)
	if err != nil {
		log.WithError(err).Error("setup failed")
		os.Exit(1)
	}

	if err := a.run(ctx, flag.Args()); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func setup(ctx context.Context, cfg config.Config, account educhain.AccountID, log *logger.Logger) (*app, error) {
	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.RPCURL,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	if err != nil {
		return nil, err
	}

	if cfg.ChainID != 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		if id != cfg.ChainID {
			return nil, fmt.Errorf("connected to chain %d, expected %d", id, cfg.ChainID)
		}
	}

	adapter := wallet.NewAdapter(wallet.NewNodeProvider(client), log)
	if err := adapter.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	if account == "" {
		accounts := adapter.Accounts()
		if len(accounts) == 0 {
			return nil, fmt.Errorf("node manages no accounts; pass -account")
		}
		account = accounts[0]
	}

	session, err := adapter.Select(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("select account %s: %w", account, err)
	}

	gw, err := gateway.New(gateway.Config{
		Client:          client,
		Signer:          adapter,
		ContractAddress: cfg.ContractAddress,
		ConfirmWait:     cfg.ConfirmWait,
		PollInterval:    cfg.PollInterval,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	cache := viewcache.New()
	coord := coordinator.New(gw, cache, log)
	adapter.OnChange(coord.InvalidateStudent)

	if cfg.RefreshSchedule != "" {
		refresher, err := viewcache.NewRefresher(cache, gw, cfg.RefreshSchedule, log)
		if err != nil {
			return nil, fmt.Errorf("refresh schedule: %w", err)
		}
		refresher.Start()
	}

	if cfg.WalletBridgeURL != "" {
		bridge := wallet.NewBridge(cfg.WalletBridgeURL, adapter, log)
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("wallet bridge stopped")
			}
		}()
	}

	return &app{coord: coord, gw: gw, adapter: adapter, session: session, log: log}, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "courses":
		return a.listCourses(ctx)
	case "create":
		return a.createCourse(ctx, args[1:])
	case "enroll":
		return a.enroll(ctx, args[1:])
	case "complete":
		return a.completeModule(ctx, args[1:])
	case "certify":
		return a.issueCertificate(ctx, args[1:])
	case "progress":
		return a.showProgress(ctx, args[1:])
	case "certificates":
		return a.listCertificates(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) listCourses(ctx context.Context) error {
	courses, err := a.gw.GetAllCourses(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tMODULES\tTEACHER")
	for _, c := range courses {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			c.ID, c.Title, gateway.FormatPrice(c.Price), c.ModuleCount, c.Teacher)
	}
	return w.Flush()
}

func (a *app) createCourse(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: create <title> <desc> <price> <url> <modules>")
	}
	modules, err := strconv.ParseUint(args[4], 10, 32)
	if err != nil {
		return fmt.Errorf("module count: %w", err)
	}

	id, err := a.coord.CreateCourse(ctx, a.session, educhain.CourseDraft{
		Title:       args[0],
		Description: args[1],
		Price:       args[2],
		ContentURL:  args[3],
		ModuleCount: uint32(modules),
	})
	if err != nil {
		return err
	}
	fmt.Printf("course created: %d\n", id)
	return nil
}

func (a *app) enroll(ctx context.Context, args []string) error {
	courseID, err := parseCourseID(args)
	if err != nil {
		return err
	}
	if err := a.coord.Enroll(ctx, a.session, courseID); err != nil {
		return err
	}
	fmt.Printf("enrolled in course %d\n", courseID)
	return nil
}

func (a *app) completeModule(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: complete <course-id> <module-index>")
	}
	courseID, err := parseCourseID(args[:1])
	if err != nil {
		return err
	}
	index, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("module index: %w", err)
	}

	if err := a.coord.CompleteModule(ctx, a.session, courseID, uint32(index)); err != nil {
		return err
	}
	fmt.Printf("module %d of course %d completed\n", index, courseID)
	return nil
}

func (a *app) issueCertificate(ctx context.Context, args []string) error {
	courseID, err := parseCourseID(args)
	if err != nil {
		return err
	}
	id, err := a.coord.IssueCertificate(ctx, a.session, courseID)
	if err != nil {
		if educhain.IsCode(err, educhain.ErrCodeIDRecovery) {
			fmt.Println("certificate issued; list certificates to see its ID")
			return nil
		}
		return err
	}
	fmt.Printf("certificate issued: %d\n", id)
	return nil
}

func (a *app) showProgress(ctx context.Context, args []string) error {
	courseID, err := parseCourseID(args)
	if err != nil {
		return err
	}
	progress, err := a.coord.Progress(ctx, a.session.Account, courseID)
	if err != nil {
		return err
	}
	fmt.Printf("enrolled: %v\ncompleted modules: %d\npassed: %v\n",
		progress.Enrolled, progress.CompletedModules, progress.Passed)
	return nil
}

func (a *app) listCertificates(ctx context.Context) error {
	certs, err := a.gw.GetCertificatesByStudent(ctx, a.session.Account)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOURSE\tISSUED AT")
	for _, c := range certs {
		fmt.Fprintf(w, "%d\t%d\t%d\n", c.ID, c.CourseID, c.IssuedAt)
	}
	return w.Flush()
}

func parseCourseID(args []string) (educhain.CourseID, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("a course ID argument is required")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid course ID %q", args[0])
	}
	return educhain.CourseID(id), nil
}

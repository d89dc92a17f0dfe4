package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bank-sync/internal/artifact"
	"github.com/dvloznov/bank-sync/internal/bank"
	"github.com/dvloznov/bank-sync/internal/bank/bmo"
	"github.com/dvloznov/bank-sync/internal/bank/manulife"
	"github.com/dvloznov/bank-sync/internal/bank/tangerine"
	"github.com/dvloznov/bank-sync/internal/browser"
	"github.com/dvloznov/bank-sync/internal/config"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ledger"
	"github.com/dvloznov/bank-sync/internal/ledger/notion"
	"github.com/dvloznov/bank-sync/internal/ledger/ynab"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/otp"
	"github.com/dvloznov/bank-sync/internal/runlog"
)

var adapterFactories = map[string]func(cfg *config.Config) bank.Adapter{
	bmo.Source: func(cfg *config.Config) bank.Adapter {
		return bmo.New(bmo.Credentials{CardNumber: cfg.BMO.CardNumber, Password: cfg.BMO.Password}, "")
	},
	tangerine.Source: func(cfg *config.Config) bank.Adapter {
		return tangerine.New(tangerine.Credentials{LoginID: cfg.Tangerine.LoginID, PIN: cfg.Tangerine.PIN}, tangerine.Config{})
	},
	manulife.Source: func(cfg *config.Config) bank.Adapter {
		return manulife.New(manulife.Credentials{Username: cfg.Manulife.Username, Password: cfg.Manulife.Password}, manulife.Config{})
	},
}

func supportedSources() string {
	names := make([]string, 0, len(adapterFactories))
	for name := range adapterFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func isSupported(source string) bool {
	_, ok := adapterFactories[source]
	return ok
}

func newAdapter(source string, cfg *config.Config) (bank.Adapter, error) {
	factory, ok := adapterFactories[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSource, source)
	}
	return factory(cfg), nil
}

// app holds the long-lived collaborators of one invocation.
type app struct {
	runner   *bank.Runner
	importer *ledger.Importer
	recorder runlog.Recorder
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	ns, err := cfg.Namespace()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	channels, err := newChannels(cfg)
	if err != nil {
		return nil, err
	}

	target, err := newLedger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		runner:   bank.NewRunner(browser.NewLauncher(cfg.Headless), channels, newStore(cfg), ns),
		importer: ledger.NewImporter(target, loc, dryRun),
		recorder: runlog.Nop{},
	}

	if cfg.RunLog.Project != "" {
		recorder, err := runlog.NewBigQueryRecorder(ctx, cfg.RunLog.Project, cfg.RunLog.Dataset)
		if err != nil {
			return nil, err
		}
		a.recorder = recorder
		a.closers = append(a.closers, recorder.Close)
	} else {
		log := logger.FromContext(ctx)
		log.Debug().Msg("runlog.project not set, run history disabled")
	}
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func newChannels(cfg *config.Config) (otp.Channels, error) {
	poll := otp.PollConfig{
		Delay:          cfg.OTP.PollDelay,
		AttemptTimeout: cfg.OTP.AttemptTimeout,
		MaxWait:        cfg.OTP.MaxWait,
	}

	channels := otp.Channels{}
	if cfg.JMAP.SessionURL != "" {
		inbox := otp.NewJMAPInbox(cfg.JMAP.SessionURL, cfg.JMAP.BearerToken, nil)
		channels[otp.Email] = otp.NewPoller(otp.Email, inbox, poll)
	}
	if cfg.VoIPms.Username != "" {
		loc, err := time.LoadLocation(cfg.VoIPms.Timezone)
		if err != nil {
			return nil, fmt.Errorf("voipms.timezone: %w", err)
		}
		inbox := otp.NewVoIPmsInbox(otp.VoIPmsConfig{
			Username: cfg.VoIPms.Username,
			Password: cfg.VoIPms.Password,
			DID:      cfg.VoIPms.DID,
			Location: loc,
		}, nil)
		channels[otp.SMS] = otp.NewPoller(otp.SMS, inbox, poll)
	}
	return channels, nil
}

func newLedger(cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.BackendYNAB:
		return ynab.NewClient(cfg.YNAB.BaseURL, cfg.YNAB.AccessToken, cfg.YNAB.BudgetID, nil), nil
	case config.BackendNotion:
		return notion.NewLedger(notion.NewClient(cfg.Notion.Token), cfg.Notion.AccountsDB, cfg.Notion.TransactionsDB), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func newStore(cfg *config.Config) artifact.Store {
	local := artifact.NewLocalStore(cfg.TraceDir)
	if cfg.GCS.Bucket == "" {
		return local
	}
	return artifact.NewGCSStore(local, artifact.NewGCSUploader(), cfg.GCS.Bucket)
}

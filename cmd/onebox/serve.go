package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/onebox/internal/classify"
	"github.com/nhle/onebox/internal/credential"
	"github.com/nhle/onebox/internal/engine"
	"github.com/nhle/onebox/internal/ingest"
	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/notify"
	"github.com/nhle/onebox/internal/store"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synchronization engine",
	Long: "Connect to every active account, backfill recent messages, and " +
		"stay connected for push notifications until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if serveVerbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		provider := credential.NewKeyring()

		accounts, err := resolveAccounts(cfg, provider)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return fmt.Errorf("no accounts configured in %s", configPathOrDefault())
		}

		if cfg.Classifier.APIKeyCredential == "" {
			return fmt.Errorf("classifier.api_key_credential not configured")
		}
		apiKey, err := provider.Get(cfg.Classifier.APIKeyCredential)
		if err != nil {
			return fmt.Errorf("resolving classifier API key: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return fmt.Errorf("creating storage directory: %w", err)
		}
		st, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		classifier := classify.NewLLMClassifier(apiKey,
			classify.WithModel(cfg.Classifier.Model),
			classify.WithMaxTokens(cfg.Classifier.MaxTokens),
		)

		notifyTimeout := time.Duration(cfg.Notify.TimeoutSec) * time.Second
		var slack *notify.Slack
		var sinks []notify.Notifier
		if cfg.Notify.SlackWebhookURL != "" {
			slack = notify.NewSlack(cfg.Notify.SlackWebhookURL, notifyTimeout)
			sinks = append(sinks, slack)
		}
		if cfg.Notify.WebhookURL != "" {
			sinks = append(sinks, notify.NewWebhook(cfg.Notify.WebhookURL, notifyTimeout))
		}
		notifier := notify.NewMulti(sinks...)
		if notifier.Targets() == 0 {
			log.Warn("no notification sinks configured")
		}

		pipeline := ingest.NewPipeline(classifier, st, notifier, ingest.PipelineConfig{
			MaxBodyChars:    cfg.Classifier.MaxBodyChars,
			ClassifyTimeout: time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
			NotifyTimeout:   notifyTimeout,
		}, log)

		dialer := mailbox.NewDialer(mailbox.Config{
			ConnectTimeout: time.Duration(cfg.Sync.ConnectTimeoutSec) * time.Second,
			IdleKeepalive:  time.Duration(cfg.Sync.IdleKeepaliveMin) * time.Minute,
		})

		coord := engine.New(
			engine.DialerFunc(func(ctx context.Context, acct model.Account) (engine.Mailbox, error) {
				return dialer.Dial(ctx, acct)
			}),
			pipeline,
			engine.Config{
				BackfillWindow: time.Duration(cfg.Sync.BackfillDays) * 24 * time.Hour,
				Backoff: engine.BackoffConfig{
					Initial: time.Duration(cfg.Sync.ReconnectMinSec) * time.Second,
					Max:     time.Duration(cfg.Sync.ReconnectMaxSec) * time.Second,
				},
			},
			engine.WithLogger(log),
			engine.WithEvents(alertFunc(slack)),
		)

		if err := coord.Start(accounts); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		coord.Stop()
		return nil
	},
}

// resolveAccounts turns account configs into engine accounts with their
// credentials resolved. A reference that cannot be resolved fails
// startup outright; there is no fallback secret.
func resolveAccounts(cfg *model.AppConfig, provider credential.Provider) ([]model.Account, error) {
	accounts := make([]model.Account, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		acct := model.Account{
			ID:       ac.ID,
			Address:  ac.Address,
			Host:     ac.Host,
			Port:     ac.Port,
			Username: ac.Username,
			Active:   ac.Active,
		}
		if !ac.Active {
			accounts = append(accounts, acct)
			continue
		}
		if ac.CredentialKey == "" {
			return nil, fmt.Errorf("account %s has no credential_key", ac.ID)
		}
		password, err := provider.Get(ac.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("resolving credential for account %s: %w", ac.ID, err)
		}
		acct.Password = password
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// alertFunc forwards auth failures to Slack as operational alerts.
// Best-effort: delivery errors are dropped.
func alertFunc(slack *notify.Slack) engine.EventFunc {
	if slack == nil {
		return nil
	}
	return func(ev engine.Event) {
		if ev.Kind != engine.EventAuthFailed {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = slack.Alert(ctx, fmt.Sprintf(
				"onebox: authentication failed for account %s: %v",
				ev.AccountID, ev.Err,
			))
		}()
	}
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Enable debug logging")
}

// Package uploader sequences a schema registration run against the
// platform: login, optional custom-node reset, model upload, logout.
// The run is strictly linear; the only guaranteed step is that logout is
// attempted exactly once, whichever stage the run ends in.
package uploader

import (
	"context"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-schema-uploader/pkg/bloodhound"
	"github.com/dd0wney/cluso-schema-uploader/pkg/config"
	"github.com/dd0wney/cluso-schema-uploader/pkg/logging"
	"github.com/dd0wney/cluso-schema-uploader/pkg/model"
)

// API is the platform surface the driver needs. *bloodhound.Client
// satisfies it; tests substitute a counting fake.
type API interface {
	Login(ctx context.Context, username, password string) (*bloodhound.Session, error)
	Logout(ctx context.Context, session *bloodhound.Session) error
	ListCustomNodeKinds(ctx context.Context, session *bloodhound.Session) ([]bloodhound.CustomNodeKind, error)
	DeleteCustomNodeKind(ctx context.Context, session *bloodhound.Session, kindName string) error
	UploadCustomNodeModel(ctx context.Context, session *bloodhound.Session, body []byte) error
}

// Driver owns the session for the lifetime of one run
type Driver struct {
	api        API
	cfg        *config.Config
	logger     logging.Logger
	logoutOnce sync.Once
}

// New creates a driver. A Driver performs a single run; create a new one
// per invocation.
func New(api API, cfg *config.Config, logger logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Driver{
		api:    api,
		cfg:    cfg,
		logger: logger.With(logging.Component("uploader")),
	}
}

// Run executes the registration sequence and returns the first fatal
// error. Logout runs on every path, including cancellation, before Run
// returns.
func (d *Driver) Run(ctx context.Context) (err error) {
	var session *bloodhound.Session
	defer func() {
		d.logout(session)
	}()

	d.logger.Info("Preparing custom node model registration (pre-ingest), no graph data will be uploaded")

	session, err = d.api.Login(ctx, d.cfg.Username, d.cfg.Password)
	if err != nil {
		d.logger.Error("Failed to authenticate", logging.Error(err))
		return err
	}
	d.logger.Info("Successfully authenticated", logging.String("username", d.cfg.Username))

	if d.cfg.Reset {
		if err := d.resetCustomNodes(ctx, session); err != nil {
			d.logger.Error("Failed to reset custom nodes", logging.Error(err))
			return err
		}
	}

	if err := d.uploadModel(ctx, session); err != nil {
		d.logger.Error("Failed to upload model", logging.Error(err))
		return err
	}

	d.logger.Info("Pre-ingest preparation completed, graph data can now be ingested")
	return nil
}

// resetCustomNodes deletes every existing custom node definition. The
// sweep is best-effort and non-transactional: each deletion is attempted
// regardless of earlier failures, and the aggregate succeeds only when
// every deletion did. The listing itself is advisory; when it fails there
// is nothing actionable to sweep and the reset reports success.
func (d *Driver) resetCustomNodes(ctx context.Context, session *bloodhound.Session) error {
	d.logger.Info("Fetching existing custom nodes")

	kinds, err := d.api.ListCustomNodeKinds(ctx, session)
	if err != nil {
		d.logger.Warn("Could not list existing custom nodes", logging.Error(err))
		return nil
	}
	if len(kinds) == 0 {
		d.logger.Info("No existing custom nodes found")
		return nil
	}

	d.logger.Info("Deleting existing custom nodes", logging.Count(len(kinds)))

	deleted := 0
	for _, kind := range kinds {
		if kind.KindName == "" {
			// Counts against the total: a definition we cannot address
			// by name is a failed deletion, not a skipped one.
			d.logger.Warn("Skipping custom node without a kind name")
			continue
		}
		if err := d.api.DeleteCustomNodeKind(ctx, session, kind.KindName); err != nil {
			d.logger.Error("Failed to delete custom node", logging.KindName(kind.KindName), logging.Error(err))
			continue
		}
		d.logger.Info("Deleted custom node", logging.KindName(kind.KindName))
		deleted++
	}

	d.logger.Info("Custom node reset finished",
		logging.Int("deleted", deleted),
		logging.Int("total", len(kinds)))

	if deleted != len(kinds) {
		return fmt.Errorf("reset custom nodes: deleted %d of %d definitions", deleted, len(kinds))
	}
	return nil
}

// uploadModel loads the local model document and submits it in a single
// request. Local file and format failures return before any network call.
func (d *Driver) uploadModel(ctx context.Context, session *bloodhound.Session) error {
	doc, err := model.Load(d.cfg.ModelPath)
	if err != nil {
		return err
	}

	if kinds := doc.KindNames(); len(kinds) > 0 {
		d.logger.Debug("Model declares custom node kinds", logging.Any("kinds", kinds))
	}
	d.logger.Info("Uploading custom node model (pre-ingest)",
		logging.Path(doc.Path()),
		logging.Count(doc.KindCount()))

	timer := logging.StartTimer(d.logger, "Model uploaded successfully", logging.Path(doc.Path()))
	if err := d.api.UploadCustomNodeModel(ctx, session, doc.Bytes()); err != nil {
		return err
	}
	timer.End()
	return nil
}

// logout tears the session down exactly once. It runs on a fresh context
// so a cancelled run still gets its cleanup attempt, and it treats a
// missing session as the idempotent no-op the server would.
func (d *Driver) logout(session *bloodhound.Session) {
	d.logoutOnce.Do(func() {
		timeout := d.cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := d.api.Logout(ctx, session); err != nil {
			// Best-effort cleanup; the session expires server-side anyway
			d.logger.Warn("Failed to log out", logging.Error(err))
			return
		}
		if session != nil && session.Token != "" {
			d.logger.Info("Successfully logged out")
		}
	})
}

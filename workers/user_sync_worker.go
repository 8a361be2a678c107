// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userChangesResponse is the top-level shape of the profile service's change
// feed.
type userChangesResponse struct {
	Users []models.RemoteUser `json:"users"`
}

// UserSyncWorker mirrors profile-service users into the local tax_users
// snapshot table. The engine evaluates against the snapshot only, so a
// profile-service outage degrades to stale data instead of failed requests.
type UserSyncWorker struct {
	db           *gorm.DB
	log          *slog.Logger
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewUserSyncWorker(db *gorm.DB, log *slog.Logger, baseURL, endpointPath, serviceToken string) *UserSyncWorker {
	return &UserSyncWorker{
		db:           db,
		log:          log,
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *UserSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting user sync worker", "source", w.baseURL)
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		w.log.Warn("initial user sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.lastSyncTime()); err != nil {
				w.log.Error("user sync batch failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Info("user sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the most recent UpdatedAt in the local snapshot table.
func (w *UserSyncWorker) lastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM tax_users WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches user changes since the given time and upserts them into
// tax_users.
func (w *UserSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var response userChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode sync response: %w", err)
	}
	if len(response.Users) == 0 {
		return nil
	}

	var upserted, failed int
	for _, remote := range response.Users {
		local := models.TaxUser{
			ExternalUserID: remote.ExternalID,
			Username:       remote.Username,
			Email:          remote.Email,
			Role:           models.RoleTag(remote.Role),
			FirstName:      remote.FirstName,
			LastName:       remote.LastName,
			Phone:          remote.Phone,
			Company:        remote.Company,
			Bio:            remote.Bio,
			PictureURL:     remote.PictureURL,
			SignupAt:       remote.CreatedAt,
		}
		if remote.DeletedAt != nil {
			local.DeletedAt = gorm.DeletedAt{Time: *remote.DeletedAt, Valid: true}
		}

		err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "role",
				"first_name", "last_name", "phone", "company", "bio", "picture_url",
				"signup_at", "deleted_at", "updated_at",
			}),
		}).Create(&local).Error
		if err != nil {
			failed++
			w.log.Warn("user snapshot upsert failed",
				"external_id", remote.ExternalID,
				"error", err,
			)
			continue
		}
		upserted++
	}

	w.log.Info("user sync batch finished",
		"received", len(response.Users),
		"upserted", upserted,
		"failed", failed,
	)
	return nil
}

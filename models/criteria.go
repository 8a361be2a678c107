package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CriteriaType tags the closed set of goal shapes the evaluator understands.
type CriteriaType string

const (
	// Standing queries — always evaluable, read aggregate state.
	CriteriaClientCount        CriteriaType = "client_count"
	CriteriaActiveClients      CriteriaType = "active_clients"
	CriteriaDocumentsProcessed CriteriaType = "documents_processed"
	CriteriaSatisfactionRating CriteriaType = "satisfaction_rating"
	CriteriaEarnings           CriteriaType = "earnings"
	CriteriaReferralCount      CriteriaType = "referral_count"
	CriteriaConversionRate     CriteriaType = "conversion_rate"
	CriteriaLinksCreated       CriteriaType = "links_created"
	CriteriaLoginStreak        CriteriaType = "login_streak"
	CriteriaMessagesSent       CriteriaType = "messages_sent"
	CriteriaProfileComplete    CriteriaType = "profile_complete"
	CriteriaSignupDate         CriteriaType = "signup_date"
	CriteriaReturnsPerDay      CriteriaType = "returns_per_day"
	CriteriaFilingStreak       CriteriaType = "filing_streak"
	CriteriaMaterialsShared    CriteriaType = "materials_shared"
	CriteriaMarketingChannels  CriteriaType = "marketing_channels"
	CriteriaRatingWithReviews  CriteriaType = "rating_with_reviews"
	CriteriaErrorFreeReturns   CriteriaType = "error_free_returns"

	// Event-gated — only meaningful for one event kind.
	CriteriaFilingSpeed    CriteriaType = "filing_speed"
	CriteriaEarlyFiling    CriteriaType = "early_filing"
	CriteriaSeasonalFiling CriteriaType = "seasonal_filing"
	CriteriaContestWinner  CriteriaType = "contest_winner"
	CriteriaEarlyLogin     CriteriaType = "early_login"
	CriteriaLateLogin      CriteriaType = "late_login"
)

// ErrUnknownCriteriaType is returned when decoding a criteria spec whose type
// tag is not in the closed set. Catalog loading rejects such definitions so
// they never reach the evaluator.
var ErrUnknownCriteriaType = errors.New("unknown criteria type")

// Criteria is one variant of the closed criteria union. Each variant carries
// its own typed parameters; dispatch happens via type switch in the evaluator.
type Criteria interface {
	CriteriaType() CriteriaType
	Validate() error
}

type ClientCountCriteria struct {
	Threshold int64 `json:"threshold"`
}

type ActiveClientsCriteria struct {
	Threshold int64 `json:"threshold"`
	Days      int   `json:"days"`
}

type DocumentsProcessedCriteria struct {
	Threshold int64 `json:"threshold"`
}

type SatisfactionRatingCriteria struct {
	Rating float64 `json:"rating"`
}

type EarningsCriteria struct {
	Threshold decimal.Decimal `json:"threshold"`
}

type ReferralCountCriteria struct {
	Threshold int64 `json:"threshold"`
}

// ConversionRateCriteria is only evaluable once the user has at least
// MinReferrals referrals; below that it reports zero progress.
type ConversionRateCriteria struct {
	Rate         float64 `json:"rate"` // percent of referrals converted
	MinReferrals int64   `json:"min_referrals"`
}

type LinksCreatedCriteria struct {
	Threshold int64 `json:"threshold"`
}

type LoginStreakCriteria struct {
	Days int `json:"days"`
}

type MessagesSentCriteria struct {
	Threshold int64 `json:"threshold"`
}

type ProfileCompleteCriteria struct {
	Fields []string `json:"fields"`
}

type SignupDateCriteria struct {
	Before time.Time `json:"before"`
}

type ReturnsPerDayCriteria struct {
	Count int64 `json:"count"`
}

type FilingStreakCriteria struct {
	Days int `json:"days"`
}

type MaterialsSharedCriteria struct {
	Threshold int64 `json:"threshold"`
}

type MarketingChannelsCriteria struct {
	Threshold int64 `json:"threshold"`
}

type RatingWithReviewsCriteria struct {
	Rating  float64 `json:"rating"`
	Reviews int64   `json:"reviews"`
}

type ErrorFreeReturnsCriteria struct {
	Threshold int64 `json:"threshold"`
}

type FilingSpeedCriteria struct {
	MaxHours float64 `json:"max_hours"`
}

type EarlyFilingCriteria struct {
	DaysBefore int `json:"days_before"`
}

// SeasonalFilingCriteria unlocks on a filing event that lands inside the
// peak-season window (March 1 – April 15 of the filing year).
type SeasonalFilingCriteria struct {
	Season string `json:"season"`
}

type ContestWinnerCriteria struct {
	Position int `json:"position"`
}

type EarlyLoginCriteria struct {
	Hour int `json:"hour"` // login at or before this hour (0-23)
}

type LateLoginCriteria struct {
	Hour int `json:"hour"` // login at or after this hour (0-23)
}

func (ClientCountCriteria) CriteriaType() CriteriaType        { return CriteriaClientCount }
func (ActiveClientsCriteria) CriteriaType() CriteriaType      { return CriteriaActiveClients }
func (DocumentsProcessedCriteria) CriteriaType() CriteriaType { return CriteriaDocumentsProcessed }
func (SatisfactionRatingCriteria) CriteriaType() CriteriaType { return CriteriaSatisfactionRating }
func (EarningsCriteria) CriteriaType() CriteriaType           { return CriteriaEarnings }
func (ReferralCountCriteria) CriteriaType() CriteriaType      { return CriteriaReferralCount }
func (ConversionRateCriteria) CriteriaType() CriteriaType     { return CriteriaConversionRate }
func (LinksCreatedCriteria) CriteriaType() CriteriaType       { return CriteriaLinksCreated }
func (LoginStreakCriteria) CriteriaType() CriteriaType        { return CriteriaLoginStreak }
func (MessagesSentCriteria) CriteriaType() CriteriaType       { return CriteriaMessagesSent }
func (ProfileCompleteCriteria) CriteriaType() CriteriaType    { return CriteriaProfileComplete }
func (SignupDateCriteria) CriteriaType() CriteriaType         { return CriteriaSignupDate }
func (ReturnsPerDayCriteria) CriteriaType() CriteriaType      { return CriteriaReturnsPerDay }
func (FilingStreakCriteria) CriteriaType() CriteriaType       { return CriteriaFilingStreak }
func (MaterialsSharedCriteria) CriteriaType() CriteriaType    { return CriteriaMaterialsShared }
func (MarketingChannelsCriteria) CriteriaType() CriteriaType  { return CriteriaMarketingChannels }
func (RatingWithReviewsCriteria) CriteriaType() CriteriaType  { return CriteriaRatingWithReviews }
func (ErrorFreeReturnsCriteria) CriteriaType() CriteriaType   { return CriteriaErrorFreeReturns }
func (FilingSpeedCriteria) CriteriaType() CriteriaType        { return CriteriaFilingSpeed }
func (EarlyFilingCriteria) CriteriaType() CriteriaType        { return CriteriaEarlyFiling }
func (SeasonalFilingCriteria) CriteriaType() CriteriaType     { return CriteriaSeasonalFiling }
func (ContestWinnerCriteria) CriteriaType() CriteriaType      { return CriteriaContestWinner }
func (EarlyLoginCriteria) CriteriaType() CriteriaType         { return CriteriaEarlyLogin }
func (LateLoginCriteria) CriteriaType() CriteriaType          { return CriteriaLateLogin }

func requirePositive(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, v)
	}
	return nil
}

func requireHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("hour must be in 0..23, got %d", h)
	}
	return nil
}

func (c ClientCountCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }

func (c ActiveClientsCriteria) Validate() error {
	if err := requirePositive("threshold", c.Threshold); err != nil {
		return err
	}
	return requirePositive("days", int64(c.Days))
}

func (c DocumentsProcessedCriteria) Validate() error {
	return requirePositive("threshold", c.Threshold)
}

func (c SatisfactionRatingCriteria) Validate() error {
	if c.Rating <= 0 || c.Rating > 5 {
		return fmt.Errorf("rating must be in (0, 5], got %v", c.Rating)
	}
	return nil
}

func (c EarningsCriteria) Validate() error {
	if !c.Threshold.IsPositive() {
		return fmt.Errorf("threshold must be positive, got %s", c.Threshold)
	}
	return nil
}

func (c ReferralCountCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }

func (c ConversionRateCriteria) Validate() error {
	if c.Rate <= 0 || c.Rate > 100 {
		return fmt.Errorf("rate must be in (0, 100], got %v", c.Rate)
	}
	return requirePositive("min_referrals", c.MinReferrals)
}

func (c LinksCreatedCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }
func (c LoginStreakCriteria) Validate() error  { return requirePositive("days", int64(c.Days)) }
func (c MessagesSentCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }

func (c ProfileCompleteCriteria) Validate() error {
	if len(c.Fields) == 0 {
		return errors.New("fields must not be empty")
	}
	for _, f := range c.Fields {
		if f == "" {
			return errors.New("fields must not contain empty names")
		}
	}
	return nil
}

func (c SignupDateCriteria) Validate() error {
	if c.Before.IsZero() {
		return errors.New("before date is required")
	}
	return nil
}

func (c ReturnsPerDayCriteria) Validate() error     { return requirePositive("count", c.Count) }
func (c FilingStreakCriteria) Validate() error      { return requirePositive("days", int64(c.Days)) }
func (c MaterialsSharedCriteria) Validate() error   { return requirePositive("threshold", c.Threshold) }
func (c MarketingChannelsCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }

func (c RatingWithReviewsCriteria) Validate() error {
	if c.Rating <= 0 || c.Rating > 5 {
		return fmt.Errorf("rating must be in (0, 5], got %v", c.Rating)
	}
	return requirePositive("reviews", c.Reviews)
}

func (c ErrorFreeReturnsCriteria) Validate() error { return requirePositive("threshold", c.Threshold) }

func (c FilingSpeedCriteria) Validate() error {
	if c.MaxHours <= 0 {
		return fmt.Errorf("max_hours must be positive, got %v", c.MaxHours)
	}
	return nil
}

func (c EarlyFilingCriteria) Validate() error {
	return requirePositive("days_before", int64(c.DaysBefore))
}

func (c SeasonalFilingCriteria) Validate() error {
	if c.Season == "" {
		return errors.New("season label is required")
	}
	return nil
}

func (c ContestWinnerCriteria) Validate() error {
	return requirePositive("position", int64(c.Position))
}

func (c EarlyLoginCriteria) Validate() error { return requireHour(c.Hour) }
func (c LateLoginCriteria) Validate() error  { return requireHour(c.Hour) }

// CriteriaSpec is the JSONB envelope stored on an achievement definition.
// On disk it is a flat object with a "type" discriminator; in memory it holds
// the decoded variant.
type CriteriaSpec struct {
	Criteria Criteria
}

// Type returns the variant tag, or empty when the spec is unset.
func (s CriteriaSpec) Type() CriteriaType {
	if s.Criteria == nil {
		return ""
	}
	return s.Criteria.CriteriaType()
}

// Validate checks the decoded variant's parameters.
func (s CriteriaSpec) Validate() error {
	if s.Criteria == nil {
		return errors.New("criteria is required")
	}
	return s.Criteria.Validate()
}

type criteriaEnvelope struct {
	Type CriteriaType `json:"type"`
}

func decodeCriteria[T Criteria](data []byte) (Criteria, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalJSON decodes the tagged object into the matching typed variant.
// Unknown tags fail here, at catalog-load time, not during evaluation.
func (s *CriteriaSpec) UnmarshalJSON(data []byte) error {
	var env criteriaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode criteria envelope: %w", err)
	}

	var (
		c   Criteria
		err error
	)
	switch env.Type {
	case CriteriaClientCount:
		c, err = decodeCriteria[ClientCountCriteria](data)
	case CriteriaActiveClients:
		c, err = decodeCriteria[ActiveClientsCriteria](data)
	case CriteriaDocumentsProcessed:
		c, err = decodeCriteria[DocumentsProcessedCriteria](data)
	case CriteriaSatisfactionRating:
		c, err = decodeCriteria[SatisfactionRatingCriteria](data)
	case CriteriaEarnings:
		c, err = decodeCriteria[EarningsCriteria](data)
	case CriteriaReferralCount:
		c, err = decodeCriteria[ReferralCountCriteria](data)
	case CriteriaConversionRate:
		c, err = decodeCriteria[ConversionRateCriteria](data)
	case CriteriaLinksCreated:
		c, err = decodeCriteria[LinksCreatedCriteria](data)
	case CriteriaLoginStreak:
		c, err = decodeCriteria[LoginStreakCriteria](data)
	case CriteriaMessagesSent:
		c, err = decodeCriteria[MessagesSentCriteria](data)
	case CriteriaProfileComplete:
		c, err = decodeCriteria[ProfileCompleteCriteria](data)
	case CriteriaSignupDate:
		c, err = decodeCriteria[SignupDateCriteria](data)
	case CriteriaReturnsPerDay:
		c, err = decodeCriteria[ReturnsPerDayCriteria](data)
	case CriteriaFilingStreak:
		c, err = decodeCriteria[FilingStreakCriteria](data)
	case CriteriaMaterialsShared:
		c, err = decodeCriteria[MaterialsSharedCriteria](data)
	case CriteriaMarketingChannels:
		c, err = decodeCriteria[MarketingChannelsCriteria](data)
	case CriteriaRatingWithReviews:
		c, err = decodeCriteria[RatingWithReviewsCriteria](data)
	case CriteriaErrorFreeReturns:
		c, err = decodeCriteria[ErrorFreeReturnsCriteria](data)
	case CriteriaFilingSpeed:
		c, err = decodeCriteria[FilingSpeedCriteria](data)
	case CriteriaEarlyFiling:
		c, err = decodeCriteria[EarlyFilingCriteria](data)
	case CriteriaSeasonalFiling:
		c, err = decodeCriteria[SeasonalFilingCriteria](data)
	case CriteriaContestWinner:
		c, err = decodeCriteria[ContestWinnerCriteria](data)
	case CriteriaEarlyLogin:
		c, err = decodeCriteria[EarlyLoginCriteria](data)
	case CriteriaLateLogin:
		c, err = decodeCriteria[LateLoginCriteria](data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCriteriaType, env.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s criteria: %w", env.Type, err)
	}

	s.Criteria = c
	return nil
}

// MarshalJSON re-injects the type tag alongside the variant's fields.
func (s CriteriaSpec) MarshalJSON() ([]byte, error) {
	if s.Criteria == nil {
		return []byte("null"), nil
	}
	fields, err := json.Marshal(s.Criteria)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(fields, &m); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(s.Criteria.CriteriaType())
	m["type"] = tag
	return json.Marshal(m)
}

// Scan implements sql.Scanner for the jsonb column.
func (s *CriteriaSpec) Scan(value any) error {
	if value == nil {
		s.Criteria = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported criteria column type %T", value)
	}
}

// Value implements driver.Valuer for the jsonb column.
func (s CriteriaSpec) Value() (driver.Value, error) {
	if s.Criteria == nil {
		return nil, nil
	}
	return s.MarshalJSON()
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

// setRequiredEnv задаёт минимальный набор обязательных переменных.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TG_BOT_TOKEN", "123456:TEST-TOKEN")
	t.Setenv("ADMIN_USER_ID", "100500")
	t.Setenv("AUTHEDU_BEARER", "bearer-token")
	t.Setenv("STUDENT_ID", "12345")
	t.Setenv("PROFILE_ID", "67890")
}

func TestLoad_RequiredVarsMissing(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "")
	t.Setenv("ADMIN_USER_ID", "")
	t.Setenv("ALLOWED_USER_ID", "")
	t.Setenv("AUTHEDU_BEARER", "")
	t.Setenv("STUDENT_ID", "")
	t.Setenv("PROFILE_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TG_BOT_TOKEN is required")
	assert.Contains(t, err.Error(), "AUTHEDU_BEARER is required")
	assert.Contains(t, err.Error(), "STUDENT_ID is required")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEZONE", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("DATA_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug) // development включает debug
	assert.Equal(t, "Europe/Moscow", cfg.App.Timezone)
	assert.Equal(t, int64(100500), cfg.Telegram.AdminUserID)
	assert.Equal(t, "https://authedu.mosreg.ru", cfg.Diary.BaseURL)
	assert.Equal(t, "student", cfg.Diary.ProfileType)
	assert.Equal(t, "familyweb", cfg.Diary.Subsystem)
	assert.Equal(t, 30*time.Second, cfg.Diary.RequestTimeout)
	assert.Equal(t, "data.json", cfg.Storage.DataFile)
	assert.Equal(t, 8080, cfg.Observability.HTTPPort)
	assert.True(t, cfg.Observability.MetricsEnabled)
	require.NotNil(t, cfg.Features)
}

func TestLoad_LegacyAllowedUserIDFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_USER_ID", "")
	t.Setenv("ALLOWED_USER_ID", "777, 888")

	cfg, err := Load()
	require.NoError(t, err)

	// Первый элемент легаси-списка становится владельцем.
	assert.Equal(t, int64(777), cfg.Telegram.AdminUserID)
}

func TestLoad_UnknownTimezoneFallsBackToMoscow(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEZONE", "Nowhere/Invalid")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, timeutil.MoscowTZ, cfg.App.Location)
}

func TestLoad_ProductionMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_DEBUG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.App.Debug)
}

// ─────────────────────────────────────────────────────────────────────────────
// FEATURE FLAGS
// ─────────────────────────────────────────────────────────────────────────────

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureFreeTextDates, nil))
	assert.True(t, ff.IsEnabled(FeatureAttachmentLinks, nil))
	assert.False(t, ff.IsEnabled(FeatureWebhookUpdates, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_HOMEWORK_FREE_TEXT_DATES", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_WEBHOOK_UPDATES", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureFreeTextDates, nil))
	assert.True(t, ff.IsEnabled(FeatureWebhookUpdates, nil))
}

func TestFeatureFlags_PercentRollout(t *testing.T) {
	t.Setenv("FEATURE_HOMEWORK_ATTACHMENT_LINKS", "50")

	ff := LoadFeatureFlags()

	features := ff.GetAllFeatures()
	require.Contains(t, features, FeatureAttachmentLinks)
	assert.Equal(t, 50, features[FeatureAttachmentLinks].RolloutPercent)

	// Пользователь не скачет между вёдрами от вызова к вызову.
	ctx := &FeatureContext{UserID: 424242}
	first := ff.IsEnabled(FeatureAttachmentLinks, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureAttachmentLinks, ctx))
	}
}

func TestFeatureFlags_UserOverride(t *testing.T) {
	ff := LoadFeatureFlags()

	ctx := &FeatureContext{UserID: 42}
	assert.False(t, ff.IsEnabled(FeatureWebhookUpdates, ctx))

	ff.SetUserOverride(42, FeatureWebhookUpdates, true)
	assert.True(t, ff.IsEnabled(FeatureWebhookUpdates, ctx))
	assert.False(t, ff.IsEnabled(FeatureWebhookUpdates, &FeatureContext{UserID: 43}))

	ff.ClearUserOverrides(42)
	assert.False(t, ff.IsEnabled(FeatureWebhookUpdates, ctx))
}

func TestFeatureFlags_AdminAlwaysEnabled(t *testing.T) {
	ff := LoadFeatureFlags()

	ctx := &FeatureContext{UserID: 1, IsAdmin: true}
	assert.True(t, ff.IsEnabled(FeatureWebhookUpdates, ctx))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()

	require.NoError(t, ff.DisableFeature(FeatureFreeTextDates))
	assert.False(t, ff.IsEnabled(FeatureFreeTextDates, nil))

	require.NoError(t, ff.EnableFeature(FeatureFreeTextDates))
	assert.True(t, ff.IsEnabled(FeatureFreeTextDates, nil))

	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.feature", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureFreeTextDates, 150), ErrInvalidRolloutPercent)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Address())
	assert.Len(t, cfg.Progression.Bands, 4)
	assert.Equal(t, 2.0, cfg.Progression.Durations[lesson.TypeGroup])
	assert.False(t, cfg.Features.IsEnabled(FeatureExamRequireEligibility))
	assert.True(t, cfg.Features.IsEnabled(FeatureScheduleDistributedLock))
	assert.True(t, cfg.Features.IsEnabled(FeatureProgressCache))
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("GRADE_BANDS", "1-5:40:30,6-12:80:70")
	t.Setenv("LESSON_HOURS_PRIVATE", "1.5")
	t.Setenv("API_KEYS", "importer:manager:$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("FEATURE_EXAM_REQUIRE_ELIGIBILITY", "true")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Len(t, cfg.Progression.Bands, 2)
	assert.Equal(t, 1.5, cfg.Progression.Durations[lesson.TypePrivate])
	require.Len(t, cfg.Auth.APIKeys, 1)
	assert.Equal(t, "importer", cfg.Auth.APIKeys[0].Name)
	assert.Equal(t, shared.RoleManager, cfg.Auth.APIKeys[0].Role)
	assert.True(t, cfg.Features.IsEnabled(FeatureExamRequireEligibility))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
}

func TestFromEnv_ReportsEveryProblem(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("GRADE_BANDS", "garbage")
	t.Setenv("API_KEYS", "broken")
	t.Setenv("HTTP_PORT", "0")

	_, err := FromEnv()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"GRADE_BANDS", "API_KEYS", "DATABASE_URL", "JWT_SECRET", "HTTP_PORT"} {
		assert.Contains(t, msg, want)
	}
}

func TestFeatureFlags(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled("no.such.flag"))
	assert.ErrorIs(t, ff.Set("no.such.flag", true), ErrFeatureNotFound)

	require.NoError(t, ff.Set(FeatureProgressCache, false))
	assert.False(t, ff.IsEnabled(FeatureProgressCache))

	all := ff.All()
	require.Len(t, all, 3)
	assert.Equal(t, FeatureExamRequireEligibility, all[0].Name)
	assert.Equal(t, "FEATURE_SCHEDULE_DISTRIBUTED_LOCK", featureNameToEnvKey(FeatureScheduleDistributedLock))
}

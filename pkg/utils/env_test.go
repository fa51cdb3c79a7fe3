package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("DCA_TEST_INT", "nope")
	t.Setenv("DCA_TEST_DURATION", "90s")
	t.Setenv("DCA_TEST_BOOL", "true")
	t.Setenv("DCA_TEST_LIST", " bnb, ,avaxc ")

	assert.Equal(t, "fallback", Env("DCA_TEST_MISSING", "fallback"))
	assert.Equal(t, 7, EnvInt("DCA_TEST_INT", 7))
	assert.Equal(t, int64(3), EnvInt64("DCA_TEST_MISSING", 3))
	assert.Equal(t, 90*time.Second, EnvDuration("DCA_TEST_DURATION", time.Minute))
	assert.True(t, EnvBool("DCA_TEST_BOOL", false))
	assert.Equal(t, []string{"bnb", "avaxc"}, EnvList("DCA_TEST_LIST"))
}

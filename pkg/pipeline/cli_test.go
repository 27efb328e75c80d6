package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/simtracks/pkg/config"
	"github.com/travigo/simtracks/pkg/legs"
	"github.com/urfave/cli/v2"
)

func TestInspect(t *testing.T) {
	cfg, _ := writeInputs(t)

	var buf bytes.Buffer
	require.NoError(t, inspect(cfg, "rider", &buf))

	out := buf.String()
	assert.Contains(t, out, `"rider"`)
	assert.Contains(t, out, "StopFacility")
	assert.Contains(t, out, `"Central"`)

	err := inspect(cfg, "nobody", &buf)
	assert.ErrorContains(t, err, "traveler nobody not found")
}

func TestInspectUsesMalformedPolicy(t *testing.T) {
	cfg, dir := writeInputs(t)

	plansPath := filepath.Join(dir, "broken_plans.xml")
	require.NoError(t, os.WriteFile(plansPath, []byte(`<population>
	<person id="broken">
		<plan selected="yes">
			<leg mode="pt"><route type="default_pt">{not json</route></leg>
		</plan>
	</person>
</population>`), 0o644))
	cfg.PlansPath = plansPath

	var buf bytes.Buffer
	require.NoError(t, inspect(cfg, "broken", &buf))

	cfg.MalformedPayload = string(legs.MalformedPolicyFail)
	err := inspect(cfg, "broken", &buf)
	assert.ErrorIs(t, err, legs.ErrMalformedPayload)
}

func TestInspectRejectsBadExpression(t *testing.T) {
	cfg, _ := writeInputs(t)
	cfg.IncludeExpr = "Mode =="

	var buf bytes.Buffer
	assert.Error(t, inspect(cfg, "rider", &buf))
	assert.Empty(t, buf.String())
}

func TestInspectCommandValidatesConfig(t *testing.T) {
	cfg, _ := writeInputs(t)

	app := &cli.App{Name: "simtracks", Commands: RegisterCLI()}
	err := app.Run([]string{
		"simtracks", "inspect",
		"--plans", cfg.PlansPath,
		"--traveler", "rider",
		"--malformed-payload", "explode",
	})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

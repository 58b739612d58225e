package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableLoads(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"broad", "dkfz_embl", "multi_tumor", "rna_seq"}, table.Names())

	wf, err := table.Workflow("dkfz_embl")
	require.NoError(t, err)
	assert.NotEmpty(t, wf.Files)
	assert.NotContains(t, wf.MandatoryFiles(), "dkfz_germline_indel_tbi")
	assert.Contains(t, wf.MandatoryFiles(), "embl_somatic_sv_vcf")
}

func TestUnknownWorkflow(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	_, err = table.Workflow("sanger")
	assert.ErrorContains(t, err, `unknown workflow "sanger"`)
}

func TestRuleForPrecedence(t *testing.T) {
	table, err := Parse([]byte(`
workflows:
  - name: w
    attributes:
      - {pattern: '^vm_.*$', policy: equal-or-label}
      - {tag: vm_instance_cores, policy: numeric-max}
      - {pattern: '^vm_instance_.*$', policy: numeric-max}
`))
	require.NoError(t, err)
	wf, err := table.Workflow("w")
	require.NoError(t, err)

	assert.Equal(t, NumericMax, wf.RuleFor("vm_instance_cores").Policy, "exact tag beats patterns")
	assert.Equal(t, EqualOrLabel, wf.RuleFor("vm_instance_mem_gb").Policy, "first matching pattern wins")

	unspecified := wf.RuleFor("study")
	assert.Equal(t, Unspecified, unspecified.Policy)
	assert.Equal(t, "study", unspecified.Tag)
}

func TestParseRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown policy", `workflows: [{name: w, attributes: [{tag: a, policy: last-writer}]}]`},
		{"tag and pattern", `workflows: [{name: w, attributes: [{tag: a, pattern: b, policy: equal-or-label}]}]`},
		{"forced pattern", `workflows: [{name: w, attributes: [{pattern: '^a', policy: forced-value, value: x}]}]`},
		{"duplicate tag", `workflows: [{name: w, attributes: [{tag: a, policy: equal-or-label}, {tag: a, policy: numeric-max}]}]`},
		{"bad regex", `workflows: [{name: w, files: [{class: c, regex: '('}]}]`},
		{"duplicate class", `workflows: [{name: w, files: [{class: c, regex: a}, {class: c, regex: b}]}]`},
		{"duplicate workflow", `workflows: [{name: w}, {name: w}]`},
		{"unnamed workflow", `workflows: [{description: x}]`},
		{"unspecified explicit", `workflows: [{name: w, attributes: [{tag: a, policy: unspecified}]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSyntheticTags(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	wf, err := table.Workflow("dkfz_embl")
	require.NoError(t, err)
	assert.Equal(t, []string{"variant_workflow_name", "merged_analysis_ids"}, wf.SyntheticTags())
}

func TestFilePatternMatch(t *testing.T) {
	p := FilePattern{Class: "snv", Regex: `\.somatic\.snv_mnv\.vcf\.gz$`}
	assert.True(t, p.Match("sample.somatic.snv_mnv.vcf.gz"))
	assert.False(t, p.Match("sample.somatic.snv_mnv.vcf.gz.tbi"))
	assert.NotNil(t, p.re)

	bad := FilePattern{Class: "broken", Regex: `(`}
	assert.NotPanics(t, func() {
		assert.False(t, bad.Match("sample.somatic.snv_mnv.vcf.gz"))
	})
	assert.Nil(t, bad.re)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`workflows: [{name: custom, files: [{class: bam, regex: '\.bam$'}]}]`), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, table.Names())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

package plan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/propertybuilder/propsync/internal/plan"
)

func TestBuildDependencyPlan(testInstance *testing.T) {
	testCases := []struct {
		name         string
		discovered   []string
		dependencies plan.Dependencies
		expectedPlan []string
	}{
		{
			name:       "prerequisites_run_first",
			discovered: []string{"alter-users.js", "create-users.js", "seed.js"},
			dependencies: plan.Dependencies{
				"alter-users.js": {"create-users.js"},
			},
			expectedPlan: []string{"create-users.js", "alter-users.js", "seed.js"},
		},
		{
			name:       "ties_break_lexicographically",
			discovered: []string{"d.js", "c.js", "b.js", "a.js"},
			dependencies: plan.Dependencies{
				"d.js": {"c.js", "b.js"},
			},
			expectedPlan: []string{"b.js", "c.js", "d.js", "a.js"},
		},
		{
			name:       "undiscovered_prerequisites_are_ignored",
			discovered: []string{"alter-users.js", "zzz.js"},
			dependencies: plan.Dependencies{
				"alter-users.js": {"create-users.js"},
				"missing.js":     {"zzz.js"},
			},
			expectedPlan: []string{"alter-users.js", "zzz.js"},
		},
		{
			name:         "no_declarations_sorts_everything",
			discovered:   []string{"b.js", "a.js"},
			expectedPlan: []string{"a.js", "b.js"},
		},
		{
			name:       "diamond",
			discovered: []string{"base.js", "left.js", "right.js", "top.js"},
			dependencies: plan.Dependencies{
				"left.js":  {"base.js"},
				"right.js": {"base.js"},
				"top.js":   {"right.js", "left.js", "left.js"},
			},
			expectedPlan: []string{"base.js", "left.js", "right.js", "top.js"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executionPlan, planError := plan.BuildDependencyPlan(testCase.discovered, testCase.dependencies)
			require.NoError(testInstance, planError)
			require.Equal(testInstance, testCase.expectedPlan, executionPlan)
		})
	}
}

func TestBuildDependencyPlanReportsCycles(testInstance *testing.T) {
	discovered := []string{"a.js", "b.js", "c.js", "d.js"}
	dependencies := plan.Dependencies{
		"a.js": {"c.js"},
		"b.js": {"a.js"},
		"c.js": {"b.js"},
		"d.js": {"a.js"},
	}

	executionPlan, planError := plan.BuildDependencyPlan(discovered, dependencies)
	require.Nil(testInstance, executionPlan)

	var cycleError *plan.DependencyCycleError
	require.ErrorAs(testInstance, planError, &cycleError)
	require.Equal(testInstance, []string{"a.js", "b.js", "c.js", "d.js"}, cycleError.Units)
	require.Contains(testInstance, planError.Error(), "a.js, b.js, c.js, d.js")
}

func TestPriorityListChainMatchesExecutionPlan(testInstance *testing.T) {
	testCases := []struct {
		name       string
		discovered []string
		priority   []string
	}{
		{
			name:       "reference_scenario",
			discovered: []string{"migrate.js", "zzz.js", "create-otp-tables.js"},
			priority:   []string{"migrate.js", "create-otp-tables.js", "run-migration.js"},
		},
		{
			name:       "gap_in_priority_list",
			discovered: []string{"c.js", "a.js", "b.js"},
			priority:   []string{"c.js", "missing.js", "a.js"},
		},
		{
			name:       "empty_priority_list",
			discovered: []string{"b.js", "a.js"},
		},
		{
			name:       "duplicated_priority_entry",
			discovered: []string{"x.js", "y.js", "z.js"},
			priority:   []string{"z.js", "x.js", "z.js"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			dependencyPlan, planError := plan.BuildDependencyPlan(testCase.discovered, plan.FromPriorityList(testCase.priority))
			require.NoError(testInstance, planError)
			require.Equal(testInstance, plan.BuildExecutionPlan(testCase.discovered, testCase.priority), dependencyPlan)
		})
	}
}

func TestDependenciesMerge(testInstance *testing.T) {
	base := plan.Dependencies{"b.js": {"a.js"}}
	merged := base.Merge(plan.Dependencies{"b.js": {"c.js"}, "d.js": {"b.js"}})

	require.Equal(testInstance, plan.Dependencies{"b.js": {"a.js", "c.js"}, "d.js": {"b.js"}}, merged)
	require.Equal(testInstance, plan.Dependencies{"b.js": {"a.js"}}, base)
}

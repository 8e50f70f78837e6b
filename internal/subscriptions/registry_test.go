package subscriptions_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/propertybuilder/propsync/internal/subscriptions"
)

func TestPlanByID(testInstance *testing.T) {
	testCases := []struct {
		name          string
		identifier    string
		expectedPlan  subscriptions.Plan
		expectedFound bool
	}{
		{
			name:       "individual_six_months",
			identifier: "ind_6m",
			expectedPlan: subscriptions.Plan{
				ID:                "ind_6m",
				Name:              "Individual 6 Months",
				DurationMonths:    6,
				Price:             400,
				PropertiesAllowed: 1,
				UserType:          subscriptions.UserTypeIndividual,
			},
			expectedFound: true,
		},
		{
			name:          "unknown_identifier",
			identifier:    "nonexistent",
			expectedPlan:  subscriptions.Plan{},
			expectedFound: false,
		},
		{
			name:          "empty_identifier",
			identifier:    "",
			expectedPlan:  subscriptions.Plan{},
			expectedFound: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			plan, found := subscriptions.PlanByID(testCase.identifier)
			require.Equal(testInstance, testCase.expectedFound, found)
			require.Equal(testInstance, testCase.expectedPlan, plan)
		})
	}
}

func TestPlansAreOrderedAndConsistent(testInstance *testing.T) {
	plans := subscriptions.Plans()
	require.Len(testInstance, plans, 1)
	require.Equal(testInstance, "ind_6m", plans[0].ID)

	for _, plan := range plans {
		lookedUp, found := subscriptions.PlanByID(plan.ID)
		require.True(testInstance, found)
		require.Equal(testInstance, plan, lookedUp)
		require.Positive(testInstance, plan.DurationMonths)
		require.Positive(testInstance, plan.PropertiesAllowed)
	}
}

func TestSubscriptionPlanCommand(testInstance *testing.T) {
	testCases := []struct {
		name      string
		arguments []string
		verify    func(testInstance *testing.T, output []byte)
	}{
		{
			name:      "single_plan_text",
			arguments: []string{"ind_6m"},
			verify: func(testInstance *testing.T, output []byte) {
				require.Contains(testInstance, string(output), "Individual 6 Months")
				require.Contains(testInstance, string(output), "individual")
			},
		},
		{
			name:      "single_plan_yaml",
			arguments: []string{"ind_6m", "--output", "yaml"},
			verify: func(testInstance *testing.T, output []byte) {
				var decoded []subscriptions.Plan
				require.NoError(testInstance, yaml.Unmarshal(output, &decoded))
				require.Len(testInstance, decoded, 1)
				require.Equal(testInstance, 400, decoded[0].Price)
				require.Equal(testInstance, 1, decoded[0].PropertiesAllowed)
			},
		},
		{
			name:      "all_plans_json",
			arguments: []string{"--output", "json"},
			verify: func(testInstance *testing.T, output []byte) {
				var decoded []subscriptions.Plan
				require.NoError(testInstance, json.Unmarshal(output, &decoded))
				require.Equal(testInstance, subscriptions.Plans(), decoded)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := subscriptions.CommandBuilder{}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			var output bytes.Buffer
			command.SetOut(&output)
			command.SetArgs(testCase.arguments)
			require.NoError(testInstance, command.Execute())
			testCase.verify(testInstance, output.Bytes())
		})
	}
}

func TestSubscriptionPlanCommandErrors(testInstance *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		expectedContains string
	}{
		{name: "unknown_plan", arguments: []string{"nonexistent"}, expectedContains: "unknown subscription plan \"nonexistent\""},
		{name: "unlisted_plan", arguments: []string{"agent_6m"}, expectedContains: "unknown subscription plan \"agent_6m\""},
		{name: "unknown_format", arguments: []string{"--output", "xml"}, expectedContains: "unsupported output format \"xml\""},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := subscriptions.CommandBuilder{}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			command.SetOut(&bytes.Buffer{})
			command.SetArgs(testCase.arguments)
			require.ErrorContains(testInstance, command.Execute(), testCase.expectedContains)
		})
	}
}

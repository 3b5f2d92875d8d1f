package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// LifecycleActions are the EMR actions emrlift issues.
var LifecycleActions = []string{
	"elasticmapreduce:RunJobFlow",
	"elasticmapreduce:DescribeCluster",
	"elasticmapreduce:ListInstanceGroups",
	"elasticmapreduce:ListInstances",
	"elasticmapreduce:AddInstanceGroups",
	"elasticmapreduce:ModifyInstanceGroups",
	"elasticmapreduce:SetTerminationProtection",
	"elasticmapreduce:TerminateJobFlows",
}

// SimulateActions asks IAM whether principalARN may perform each action on
// any EMR cluster. The result maps action name to allowed.
func SimulateActions(ctx context.Context, client IAMAPI, principalARN string, actions []string) (map[string]bool, error) {
	out, err := client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(principalARN),
		ActionNames:     actions,
		ResourceArns:    []string{"arn:aws:elasticmapreduce:*:*:cluster/*"},
	})
	if err != nil {
		return nil, fmt.Errorf("simulating policy for %s: %w", principalARN, err)
	}

	allowed := make(map[string]bool, len(actions))
	for _, a := range actions {
		allowed[a] = false
	}
	for _, result := range out.EvaluationResults {
		if result.EvalDecision == iamtypes.PolicyEvaluationDecisionTypeAllowed {
			allowed[aws.ToString(result.EvalActionName)] = true
		}
	}
	return allowed, nil
}

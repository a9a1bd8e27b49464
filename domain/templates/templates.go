// Package templates holds the service-operation template table
// (spec.md §4.5): pre-baked Task builders for the S3, DynamoDB, and SQS
// intrinsic integrations, each declaring its parameter shape and result
// shape so the compiler can emit them without hand-rolling a Task per
// call site.
package templates

import (
	"fmt"

	"github.com/r3e-network/sfnc/domain/builder"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// Template describes one service operation: the ARN-shaped resource it
// invokes, its step label (used for diagnostics and ID generation), and
// the output fields its result-selector narrows the response to.
type Template struct {
	Name         string
	StepLabel    string
	Resource     string
	OutputFields []string
}

// Table is the registry of recognized service operations, keyed by the
// name the compiler sees the orchestrator call (e.g. "s3.getObjectJSON").
var Table = map[string]Template{
	"s3.getObjectJSON": {
		Name:         "s3.getObjectJSON",
		StepLabel:    "S3GetObjectJSON",
		Resource:     "arn:aws:states:::aws-sdk:s3:getObject",
		OutputFields: []string{"body"},
	},
	"s3.putObjectJSON": {
		Name:         "s3.putObjectJSON",
		StepLabel:    "S3PutObjectJSON",
		Resource:     "arn:aws:states:::aws-sdk:s3:putObject",
		OutputFields: []string{"eTag"},
	},
	"sqs.send": {
		Name:         "sqs.send",
		StepLabel:    "SQSSendMessage",
		Resource:     "arn:aws:states:::aws-sdk:sqs:sendMessage",
		OutputFields: []string{"messageId"},
	},
	"sqs.receive": {
		Name:         "sqs.receive",
		StepLabel:    "SQSReceiveMessage",
		Resource:     "arn:aws:states:::aws-sdk:sqs:receiveMessage",
		OutputFields: []string{"messages"},
	},
	"sqs.delete": {
		Name:         "sqs.delete",
		StepLabel:    "SQSDeleteMessage",
		Resource:     "arn:aws:states:::aws-sdk:sqs:deleteMessage",
		OutputFields: []string{},
	},
	"dynamodb.getItem": {
		Name:         "dynamodb.getItem",
		StepLabel:    "DynamoDBGetItem",
		Resource:     "arn:aws:states:::aws-sdk:dynamodb:getItem",
		OutputFields: []string{"item"},
	},
	"dynamodb.putItem": {
		Name:         "dynamodb.putItem",
		StepLabel:    "DynamoDBPutItem",
		Resource:     "arn:aws:states:::aws-sdk:dynamodb:putItem",
		OutputFields: []string{},
	},
	"dynamodb.updateItem": {
		Name:         "dynamodb.updateItem",
		StepLabel:    "DynamoDBUpdateItem",
		Resource:     "arn:aws:states:::aws-sdk:dynamodb:updateItem",
		OutputFields: []string{"attributes"},
	},
	"dynamodb.deleteItem": {
		Name:         "dynamodb.deleteItem",
		StepLabel:    "DynamoDBDeleteItem",
		Resource:     "arn:aws:states:::aws-sdk:dynamodb:deleteItem",
		OutputFields: []string{},
	},
}

// Lookup resolves name in Table.
func Lookup(name string) (Template, bool) {
	t, ok := Table[name]
	return t, ok
}

// Build emits the pre-baked Task for this template (spec.md §4.5:
// "input_path is the register... result_path is $.register.out...
// result_selector narrows the service response to the declared output
// fields"). params must already be lowered (literal values, or register
// paths with a ".$"-suffixed key per the builder's path-parameter
// convention).
func (t Template) Build(b builder.Builder, id string, params map[string]interface{}) (*builder.Node, builder.SuccessorSink) {
	node, sink := b.NewTask(id, t.Resource, builder.IntegrationSync, params, "$.register", "$.register.out", 0, 0)
	node.Label = t.StepLabel

	selector := make(map[string]interface{}, len(t.OutputFields))
	for _, f := range t.OutputFields {
		selector[f+".$"] = "$.out." + f
	}
	node.ResultSelector = selector

	return node, sink
}

// UnknownTemplate builds the compile error for a service-operation name
// that does not appear in Table.
func UnknownTemplate(name string) error {
	return cerr.UnknownCallee(fmt.Sprintf("unrecognized service operation %q", name))
}

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphmesh/graphmesh/pkg/ai"
)

// defaultEntityTypes is used when extraction is not configured with a custom
// type set.
var defaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT", "CREATIVE_WORK", "DATE", "PRODUCT", "EVENT",
}

// ExtractedNode is a node produced by graph extraction. LocalID is only
// meaningful within a single extraction response.
type ExtractedNode struct {
	LocalID     string `json:"local_id" jsonschema_description:"Local id of the entity, unique within this answer (e.g. n1, n2)"`
	Name        string `json:"name" jsonschema_description:"Name of the entity"`
	Type        string `json:"type" jsonschema_description:"One of the provided entity types"`
	Description string `json:"description" jsonschema_description:"Comprehensive description of the entity's attributes, activities and information provided by the source"`
}

// ExtractedEdge is a relation produced by graph extraction, referencing
// local node ids.
type ExtractedEdge struct {
	SourceLocalID string `json:"source_local_id" jsonschema_description:"Local id of the source entity"`
	TargetLocalID string `json:"target_local_id" jsonschema_description:"Local id of the target entity"`
	Relationship  string `json:"relationship" jsonschema_description:"Short natural-language label describing how the source relates to the target"`
}

// Extraction is the structured result of graph extraction over one chunk.
type Extraction struct {
	Nodes []ExtractedNode `json:"nodes" jsonschema_description:"Entities identified in the text"`
	Edges []ExtractedEdge `json:"edges" jsonschema_description:"Relationships identified in the text"`
}

// RelationInference is the structured answer to whether two node
// descriptions are related. SourceLabel selects the source of the relation:
// "node1" means the first description is the source.
type RelationInference struct {
	Related      bool   `json:"related" jsonschema_description:"Whether the two entities are meaningfully related"`
	SourceLabel  string `json:"source_label" jsonschema_description:"Which entity is the source of the relation: node1 or node2. Empty when not related"`
	Relationship string `json:"relationship" jsonschema_description:"Short natural-language label for the relationship. Empty when not related"`
}

// Semantic is the language-model contract of the engine. Implementations
// wrap a GraphAIClient with the domain prompts.
type Semantic interface {
	ExtractGraph(ctx context.Context, text string) (*Extraction, error)
	MergeDescriptions(ctx context.Context, a, b string) (string, error)
	InferRelation(ctx context.Context, descA, descB string) (*RelationInference, error)
	SummarizeCommunity(ctx context.Context, members string) (string, error)
	SummarizeGlobal(ctx context.Context, summaries string) (string, error)
	Answer(ctx context.Context, subgraphJSON, question string) (string, error)
	AnswerStream(ctx context.Context, subgraphJSON, question string) (<-chan ai.StreamEvent, error)
}

// SemanticClient implements Semantic on top of a GraphAIClient.
type SemanticClient struct {
	aiClient    ai.GraphAIClient
	entityTypes []string
}

func NewSemanticClient(aiClient ai.GraphAIClient) *SemanticClient {
	return &SemanticClient{
		aiClient:    aiClient,
		entityTypes: defaultEntityTypes,
	}
}

// ExtractGraph runs structured entity and relationship extraction over text.
func (c *SemanticClient) ExtractGraph(ctx context.Context, text string) (*Extraction, error) {
	systemPrompt := fmt.Sprintf(ai.ExtractPrompt, strings.Join(c.entityTypes, ","))

	var extraction Extraction
	err := c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"extract_graph",
		"Extract entities and relationships from a provided text document.",
		text,
		&extraction,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to extract graph: %w", err)
	}
	return &extraction, nil
}

// MergeDescriptions synthesizes a single description from two descriptions
// of the same entity. May return an empty string, in which case the caller
// falls back to a deterministic join.
func (c *SemanticClient) MergeDescriptions(ctx context.Context, a, b string) (string, error) {
	prompt := fmt.Sprintf(ai.MergeDescriptionsPrompt, a, b)
	merged, err := c.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to merge descriptions: %w", err)
	}
	return strings.TrimSpace(merged), nil
}

// InferRelation decides whether two node descriptions are related and in
// which direction.
func (c *SemanticClient) InferRelation(ctx context.Context, descA, descB string) (*RelationInference, error) {
	systemPrompt := fmt.Sprintf(ai.InferRelationPrompt, descA, descB)

	var inference RelationInference
	err := c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"infer_relation",
		"Decide whether two knowledge graph entities are related.",
		"Are the two entities related?",
		&inference,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to infer relation: %w", err)
	}
	return &inference, nil
}

// SummarizeCommunity summarizes the concatenated member descriptions of one
// community.
func (c *SemanticClient) SummarizeCommunity(ctx context.Context, members string) (string, error) {
	prompt := fmt.Sprintf(ai.CommunitySummaryPrompt, members)
	summary, err := c.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize community: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// SummarizeGlobal summarizes the concatenated community summaries of an
// index.
func (c *SemanticClient) SummarizeGlobal(ctx context.Context, summaries string) (string, error) {
	prompt := fmt.Sprintf(ai.GlobalSummaryPrompt, summaries)
	summary, err := c.aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize globally: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// Answer answers a question given the serialized subgraph.
func (c *SemanticClient) Answer(ctx context.Context, subgraphJSON, question string) (string, error) {
	systemPrompt := fmt.Sprintf(ai.AnswerPrompt, subgraphJSON)
	answer, err := c.aiClient.GenerateCompletion(ctx, question, ai.WithSystemPrompts(systemPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// AnswerStream answers a question given the serialized subgraph, streaming
// the reply. Cancellation of ctx stops the stream.
func (c *SemanticClient) AnswerStream(ctx context.Context, subgraphJSON, question string) (<-chan ai.StreamEvent, error) {
	systemPrompt := fmt.Sprintf(ai.AnswerPrompt, subgraphJSON)
	stream, err := c.aiClient.GenerateChatStream(
		ctx,
		[]ai.ChatMessage{{Role: "user", Message: question}},
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start answer stream: %w", err)
	}
	return stream, nil
}

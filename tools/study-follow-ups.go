package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/query"
)

type StudyFollowUpsQuery struct {
	Study    string `json:"study"`
	Question string `json:"question"` // The question that was asked
	Answer   string `json:"answer"`   // The answer that was given
}

type StudyFollowUpsResponse struct {
	Questions []string `json:"questions"`
	StudyType string   `json:"study_type"`
	Error     string   `json:"error,omitempty"`
}

func StudyFollowUpsTool() *mcp.Tool {
	inputschema, err := jsonschema.For[StudyFollowUpsQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "study-follow-ups",
		Description: "Suggest up to three follow-up questions after a study-query answer, focused on the key variables of the study's domain (vaccine coverage, Ebola virus, GeneXpert or general).",
		InputSchema: inputschema,
	}
}

func StudyFollowUpsToolHandler(ctx context.Context, req *mcp.CallToolRequest, q StudyFollowUpsQuery, deps *Deps) (*mcp.CallToolResult, *StudyFollowUpsResponse, error) {
	deps.Log.Info("study-follow-ups tool called for %q", q.Study)

	if q.Study == "" || q.Question == "" {
		return nil, nil, errors.New("study and question are required")
	}
	response := &StudyFollowUpsResponse{
		Questions: []string{},
		StudyType: query.InferStudyType(q.Study).Name,
	}

	col, err := deps.Builder.Resolve(ctx, q.Study)
	if err != nil {
		response.Error = query.ErrorMessage(err)
		return nil, response, nil
	}
	questions, err := deps.Engine.FollowUps(ctx, col, q.Question, q.Answer)
	if err != nil {
		deps.Log.Error("Follow-up generation for %s failed: %v", q.Study, err)
		response.Error = query.ErrorMessage(err)
		return nil, response, nil
	}
	response.Questions = questions
	return nil, response, nil
}

package chat

import (
	"github.com/duckmesh/tabletalk/internal/classify"
	"github.com/duckmesh/tabletalk/internal/conversation"
	"github.com/duckmesh/tabletalk/internal/shape"
)

// intent is the closed set of branches an utterance can take.
type intent interface {
	category() classify.Category
}

type chitChat struct{}

type metadataQuestion struct{}

type editInstruction struct{}

type visualizationControl struct {
	view shape.View
}

type dataQuestion struct{}

func (chitChat) category() classify.Category             { return classify.ChitChat }
func (metadataQuestion) category() classify.Category     { return classify.MetadataQuestion }
func (editInstruction) category() classify.Category      { return classify.EditInstruction }
func (visualizationControl) category() classify.Category { return classify.VisualizationControl }
func (dataQuestion) category() classify.Category         { return classify.DataQuestion }

func intentFor(text string, history conversation.History) intent {
	switch classify.Classify(text, classify.Context{HasActiveVisualization: history.HasActiveVisualization()}) {
	case classify.ChitChat:
		return chitChat{}
	case classify.MetadataQuestion:
		return metadataQuestion{}
	case classify.EditInstruction:
		return editInstruction{}
	case classify.VisualizationControl:
		return visualizationControl{view: shape.View(classify.RequestedView(text))}
	default:
		return dataQuestion{}
	}
}

package observability

import (
	"context"
	"time"

	"ntropiq/pkg/ntropiqtypes"
)

// Collaborator names used as metric labels.
const (
	CollaboratorReply    = "reply"
	CollaboratorInsights = "insights"
	CollaboratorAnalysis = "analysis"
	CollaboratorSpeech   = "speech"
)

// Collaborators bundles the four collaborator contracts.
type Collaborators struct {
	Reply    ntropiqtypes.ReplyGenerator
	Insights ntropiqtypes.InsightGenerator
	Analyzer ntropiqtypes.CodeAnalyzer
	Speech   ntropiqtypes.SpeechSynthesizer
}

// Instrument returns collaborators that record each call on m. Nil members stay nil.
func (m *Metrics) Instrument(c Collaborators) Collaborators {
	out := Collaborators{}
	if c.Reply != nil {
		out.Reply = &observedText{m: m, reply: c.Reply}
	}
	if c.Insights != nil {
		out.Insights = &observedText{m: m, insights: c.Insights}
	}
	if c.Analyzer != nil {
		out.Analyzer = &observedText{m: m, analyzer: c.Analyzer}
	}
	if c.Speech != nil {
		out.Speech = &observedSpeech{m: m, next: c.Speech}
	}
	return out
}

type observedText struct {
	m        *Metrics
	reply    ntropiqtypes.ReplyGenerator
	insights ntropiqtypes.InsightGenerator
	analyzer ntropiqtypes.CodeAnalyzer
}

func (o *observedText) GenerateReply(ctx context.Context, message string) ntropiqtypes.Result {
	start := time.Now()
	r := o.reply.GenerateReply(ctx, message)
	o.m.ObserveCollaborator(CollaboratorReply, r.Err, time.Since(start))
	return r
}

func (o *observedText) GenerateInsights(ctx context.Context, query string) ntropiqtypes.Result {
	start := time.Now()
	r := o.insights.GenerateInsights(ctx, query)
	o.m.ObserveCollaborator(CollaboratorInsights, r.Err, time.Since(start))
	return r
}

func (o *observedText) AnalyzeCode(ctx context.Context, code, language string) ntropiqtypes.Result {
	start := time.Now()
	r := o.analyzer.AnalyzeCode(ctx, code, language)
	o.m.ObserveCollaborator(CollaboratorAnalysis, r.Err, time.Since(start))
	return r
}

type observedSpeech struct {
	m    *Metrics
	next ntropiqtypes.SpeechSynthesizer
}

func (o *observedSpeech) Synthesize(ctx context.Context, req ntropiqtypes.SpeechRequest) ntropiqtypes.AudioResult {
	start := time.Now()
	r := o.next.Synthesize(ctx, req)
	o.m.ObserveCollaborator(CollaboratorSpeech, r.Err, time.Since(start))
	return r
}

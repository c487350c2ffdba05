// Package assistant turns natural language requests into flows and merges
// them into a flow.Store.
//
// A Generator produces a candidate flow as JSON, typically by streaming from
// an OpenAI-compatible chat endpoint. The Assistant parses the candidate,
// resolves its component ids against the definition registry, and hands it
// to Store.MergeFlow, which validates it exactly like an import and lays it
// out with the current layout settings.
//
// Every run holds a Session token. Starting a new run or calling Abort
// invalidates the token, cancels the run's context, and guarantees the run
// never merges: validity is checked under the session lock immediately
// before the merge is applied.
//
// Basic usage:
//
//	gen, err := assistant.NewOpenAIGenerator(assistant.OpenAIConfig{
//		BaseURL: "http://localhost:11434/v1",
//		Model:   "mistral",
//	})
//	if err != nil {
//		return err
//	}
//	a := assistant.New(store, gen, assistant.WithDefinitions(registry))
//	res, err := a.Prompt(ctx, "read orders from jms and log them", func(chunk string) {
//		fmt.Print(chunk)
//	})
package assistant

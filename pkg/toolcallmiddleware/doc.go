// Package toolcallmiddleware emulates structured tool-calling on top of
// language models that only expose a plain text/text-delta channel. It
// renders tool descriptors into the system prompt, rewrites conversation
// history into the active protocol's textual form, and parses free-form
// model output back into structured tool-call events for both whole-response
// and token-delta streaming consumption.
//
// The shared primitives (boundary-safe buffer scan, content/event sum
// types, the tolerant XML scaffold, the JSON object locator) live in the
// core subpackage; concrete protocols live under protocol, the two
// extractors under extractor, the outgoing message rewrite under prompt,
// and the tool-choice handling under toolchoice. This package wires them
// together behind New, returning a *middleware.LanguageModelMiddleware.
package toolcallmiddleware

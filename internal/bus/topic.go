package bus

import "strings"

// Topic names an event. Topics use the form "namespace:action".
type Topic string

// State change topics, published by the store and the workflow.
const (
	TopicCatalogChanged    Topic = "catalog:changed"
	TopicPreviewChanged    Topic = "preview:changed"
	TopicProductChanged    Topic = "product:changed"
	TopicBasketChanged     Topic = "basket:changed"
	TopicValidationChanged Topic = "validation:changed"
	TopicOrderReady        Topic = "order:ready"
	TopicOrderSubmitted    Topic = "order:submitted"
	TopicLoadingChanged    Topic = "loading:changed"
	TopicStepChanged       Topic = "step:changed"
	TopicErrorReported     Topic = "error:reported"
)

// Intent topics, published by view widgets to ask for a command.
const (
	TopicCardSelect   Topic = "card:select"
	TopicBasketToggle Topic = "basket:toggle"
	TopicBasketOpen   Topic = "basket:open"
	TopicOrderOpen    Topic = "order:open"
	TopicModalClose   Topic = "modal:close"
)

// Namespace returns the part of the topic before the first colon.
func (t Topic) Namespace() string {
	ns, _, _ := strings.Cut(string(t), ":")
	return ns
}

func (t Topic) String() string {
	return string(t)
}

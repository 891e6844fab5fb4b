package events

import "strings"

// TopicPrefix es el namespace de los topics del servicio. El mapeo
// tipo de evento <-> topic es 1:1 y reversible para que el tooling pueda
// reconstruir el tipo a partir del topic.
const TopicPrefix = "sagalab."

// TopicForType mapea un tipo de evento a su topic de transporte.
// ej. "order.created" -> "sagalab.order.created"
func TopicForType(eventType string) string {
	return TopicPrefix + eventType
}

// TypeForTopic deshace el mapeo. Devuelve false si el topic no pertenece
// al namespace del servicio.
func TypeForTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, TopicPrefix), true
}

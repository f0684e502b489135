// Package broadcaster periodically drains the catalog outbox and publishes
// each DDL event to Kafka, marking records SENT before and ACKED after the
// broker confirms. Delivery is at least once.
package broadcaster

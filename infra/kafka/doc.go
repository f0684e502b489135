// Package kafka carries the DDL change feed over Kafka with kafka-go: a
// producer for publishing and a consumer that evicts cached currval
// entries when another node drops or renames a sequence.
package kafka

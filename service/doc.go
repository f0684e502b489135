// Package service is the operation surface of the sequence server: DDL,
// nextval, currval, setval and listing, each run inside a transaction
// against the directory, the session cache and the catalog.
//
// It is decoupled from network transports like gRPC.
package service

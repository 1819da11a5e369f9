// Package metric provides Prometheus metrics for roomrelay.
//
// Every relay component records into a Registry that owns a private
// prometheus.Registry, so tests can build isolated registries and read the
// values back. The process-wide instance is returned by Global and served at
// /metrics.
//
// Metrics:
//
//	roomrelay_connections_active           gauge
//	roomrelay_joins_total                  counter
//	roomrelay_leaves_total                 counter
//	roomrelay_subscribe_total{result}      counter
//	roomrelay_unsubscribe_total{result}    counter
//	roomrelay_messages_received_total      counter
//	roomrelay_deliveries_total{result}     counter
//	roomrelay_publish_total{result}        counter
//	roomrelay_store_errors_total{op}       counter
//
// All recording methods are safe on a nil *Registry.
package metric

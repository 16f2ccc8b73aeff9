// Package influxdb mirrors device telemetry into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. SQLite remains the
// system of record; InfluxDB is an optional, lossy copy for dashboards and
// long-range queries, enabled with influxdb.enabled in config.yaml.
//
// # Schema
//
//	sensor_reading temperature=<float>,humidity=<float>,light=<int> <producer time>
//	device_status,device=<id> status="<status>" <producer time>
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ingestor.AddObserver(client)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb

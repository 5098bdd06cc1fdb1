// Package mqtt publishes catalogdb query events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained status topic per instance, with a Last Will for crashes
//   - A Publisher that implements database.Observer
//   - Watches that decode other instances' query events
//
// # Topics
//
//	catalogdb/<instance>/query   JSON Event per executed statement
//	catalogdb/<instance>/status  retained Status (online/offline)
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, cfg.Instance.ID, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	db, err := database.Open(ctx, dbCfg, cat,
//	    database.WithObserver(mqtt.NewPublisher(client)))
//
//	err = client.Watch(ctx, client.Topics().AllQueries(), func(ev mqtt.Event) {
//	    fmt.Println(ev.Instance, ev.Statement)
//	})
//
// Watches survive reconnects. Publishing never waits for the broker, so a
// slow or absent broker does not hold the database lock.
package mqtt

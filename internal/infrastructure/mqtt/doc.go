// Package mqtt provides the broker connection used by the EtherNet/IP bridge.
//
// This package manages:
//   - Connection to an MQTT broker (plain TCP or TLS, optional credentials)
//   - Message publishing with QoS and retained flag
//   - Last Will and Testament plus retained online/offline status
//   - Connection-lost notification
//
// Reconnection is deliberately not handled here: paho's auto-reconnect is
// off, and the bridge supervisor calls Connect again on its own backoff
// schedule after a disconnect notification.
//
// # Topics
//
//	<prefix>/data    telemetry envelopes
//	<prefix>/status  retained online/offline (also the LWT)
//	<prefix>/health  retained health report
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnDisconnect(func(err error) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.Publish(client.Topics().Data(), payload, 1, false)
package mqtt

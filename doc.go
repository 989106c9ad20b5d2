// Package cabintwin provides the building blocks of a digital twin for a truck
// cabin component (a sun visor). A digital twin is a virtual representation of
// a real-world entity, maintained by digesting a stream of sensor readings in
// order to produce a consistent view of the component's condition.
//
// The package defines two things:
//
//   - the asset model: a directed graph (an Assembly) whose nodes are the truck,
//     its cabin, the monitored part and the sensors mounted on it. Nodes are
//     identified by content-address (see ContentAddress), so the same asset is
//     recognised across processes and storage engines.
//   - the event stream: Readings sampled from every Channel, published to a
//     pubsub topic (see PublishReadings) and consumed by an EventSource.
//
// Sub-packages generate synthetic readings (synth), account for fatigue damage
// (lifemodel), flag anomalies (anomaly), imitate a structural solver (fea),
// store datasets (dataset), run the twin (twin), persist it (neo4jstore,
// history) and render it (dashboard).
package cabintwin

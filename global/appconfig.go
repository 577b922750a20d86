package global

const NodeTypeSessionGateway = "session_gateway"

type AppConfig struct {
	NodeType      string
	GatewayNodeId string // node id, part of every presence key
	Port          int    // http listen port
	NatsURL       string
	NatsSubject   string // subject for cross-node room notifications
	SweepSeconds  int    // reclamation pass interval
}

var SessionGatewayConfig = AppConfig{
	NodeType:      NodeTypeSessionGateway,
	GatewayNodeId: "session_gw_01",
	Port:          8080,
	NatsURL:       "nats://127.0.0.1:4222",
	NatsSubject:   "session.rooms",
	SweepSeconds:  60,
}

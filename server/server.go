package server

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	promclient "github.com/milkmamado/biscal-sub002/infrastructure/prometheus"
	"github.com/milkmamado/biscal-sub002/provider/binance"
	"github.com/milkmamado/biscal-sub002/usecase"
)

var logger = log.New(os.Stdout, "[gateway] ", log.LstdFlags)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from a different origin in development.
		return true
	},
}

// Server is the websocket gateway the browser dashboard connects to. Clients
// subscribe per symbol and receive book feeds plus ticker/kline/trade
// passthrough frames; trade logs are recorded through the same connection.
type Server struct {
	books      *usecase.OrderBookStreamUseCase
	tradeLogs  *usecase.TradeLogUseCase // nil when persistence is disabled
	streams    *binance.StreamAPI
	validation *ValidationService
}

func NewServer(
	books *usecase.OrderBookStreamUseCase,
	tradeLogs *usecase.TradeLogUseCase,
	streams *binance.StreamAPI,
	validation *ValidationService,
) *Server {
	return &Server{
		books:      books,
		tradeLogs:  tradeLogs,
		streams:    streams,
		validation: validation,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Println("upgrade failed:", err)
		return
	}

	c := newClient(s, conn)
	promclient.GatewayClientsGauge.Inc()
	logger.Printf("client %s connected from %s", c.id, r.RemoteAddr)

	go c.writePump()
	c.readPump()

	promclient.GatewayClientsGauge.Dec()
	logger.Printf("client %s disconnected", c.id)
}

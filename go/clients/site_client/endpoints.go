package site_client

const (
	// Chat
	ChatMessagesEndpoint = "/chat/messages"
	ChatSendEndpoint     = "/chat/send"
	ChatDeleteEndpoint   = "/chat/delete/%d"
	ChatOnlineEndpoint   = "/chat/online"

	// Wallet
	BalanceEndpoint = "/api/balance"

	// Games
	CoinflipListEndpoint = "/coinflip/list"
	CoinflipViewPath     = "/coinflip?view=%s"
	CoinflipPagePath     = "/coinflip"

	// Headers
	RequestedWithHeader = "X-Requested-With"
	RequestedWith       = "XMLHttpRequest"
	AcceptHeader        = "Accept"
	AcceptJSON          = "application/json"
)

// Package boardgame 伺服器權威的多人地產交易桌遊伺服器
//
// 客戶端只送出意圖，所有規則、骰子、計時都由伺服器決定。
// 每個房間是一個單一 goroutine 的 actor，動作先寫入持久化層才算提交，
// 提交後依序號廣播 delta 給房間內所有連線。
//
// # 套件
//
//   - internal/board：純函數規則模型，Apply(state, action) 產生新狀態、事件與差異
//   - internal/room：房間 actor、房間管理器、崩潰恢復
//   - internal/session：身分、session token、斷線寬限期
//   - internal/protocol：握手與動作信封
//   - internal/gateway：WebSocket Hub 與管理 API
//   - internal/store：動作日誌與快照（記憶體 / PostgreSQL）
//   - internal/broker：把 delta 鏡像到 NATS
//
// # 啟動
//
//	go run ./cmd/server -config configs/config.yaml
//
// # 客戶端流程
//
//	→ {"type":"hello","protocol_version":1,"new_identity":true,"room_id":"..."}
//	← {"type":"welcome","player_identity":"...","session_token":"..."}
//	← {"event_type":"full_state","sequence_number":0,...}
//	→ {"protocol_version":1,"action_type":"join",...}
//	← {"event_type":"ack","sequence_number":1,...}
//	← {"event_type":"delta","sequence_number":1,...}
//
// 客戶端發現序號缺口時送出 action_type "sync" 取得完整狀態。
//
// # 恢復
//
// 啟動時從最新且校驗通過的快照重播後續動作。快照損毀時退回較舊的快照；
// 動作序號不連續的房間標記為無法恢復，不影響其他房間。
package boardgame

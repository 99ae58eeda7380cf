// Package notify is the outbound notification channel.
//
// Callers hand messages to a Notifier with Enqueue, which is fire-and-forget:
// a nil error means the message was accepted, not that it was delivered. The
// Queue decouples callers from the transport and drains into a Sender:
//
//   - LogSender writes messages to the process log
//   - SignalSender shells out to signal-cli
//   - WebhookSender POSTs JSON to a chat-transport gateway
//
// OperatorAlerter routes operator diagnostics, such as the reauthorization
// notice, through the same channel.
package notify

// Package gmail reads and sends Gmail messages.
//
// The package has three layers:
//   - Client implements API over google.golang.org/api/gmail/v1, recording a
//     span and metrics per call and wrapping failures in RemoteCallError
//   - Decode, Encode and ParseRaw translate between API payloads and the
//     flat Message and OutgoingMessage types; ResolveReply derives reply
//     headers so answers stay in the original thread
//   - Mailbox combines both into the list, read, labels and send workflows
//     used by the CLI
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, metrics, option.WithHTTPClient(httpClient))
//	if err != nil {
//	    return err
//	}
//	mb := gmail.NewMailbox(client)
//
//	msgs, err := mb.List(ctx, gmail.ListOptions{Count: 20, UnreadOnly: true})
//
//	res, err := mb.Send(ctx, gmail.SendRequest{ReplyTo: msgs[0].ID, Body: "Thanks!"})
package gmail

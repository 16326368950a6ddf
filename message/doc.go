// Package message implements the message content model used by the group
// send pipeline.
//
// A Chain is an immutable, ordered sequence of Elements. Supported elements
// are PlainText, Image, At, Face, QuoteReply and ForwardMessage. The package
// only models what the pipeline needs: estimating the encoded size of a
// chain, counting element kinds and detecting forward bundles.
//
// # Building Chains
//
//	chain := message.NewChain(
//	    message.PlainText{Content: "hello "},
//	    message.At{Target: 123456, Display: "@alice"},
//	    message.Image{ID: "{01E9451B-70ED-EAE3-B37C-101F1EEBF5B5}.jpg"},
//	)
//	longer := chain.Plus(message.PlainText{Content: "!"})
//
// # Size Estimation
//
// EstimateLength sums per-element weights from a Weights table. Text is
// weighted by its UTF-8 byte length; images, mentions, faces and quotes use
// fixed weights. Summation stops as soon as the total exceeds the caller's
// bound, so estimating a huge chain against a small bound is cheap:
//
//	weight := chain.EstimateLength(message.DefaultWeights, 5001)
//
// # Forward Bundles
//
// A ForwardMessage folds several logical messages (ForwardNodes) into one
// transport unit. It must be the only element of its chain.
//
// # External Images
//
// ExternalImage wraps image bytes that have not been uploaded yet together
// with their MD5 digest, which the server uses for de-duplication:
//
//	img, err := message.OpenExternalImage("cat.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	uploaded, err := grp.UploadImage(ctx, img) // closes img
package message

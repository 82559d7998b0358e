package domain

import "time"

// baseCost is the per-generation price in credits, by content type. Video is
// by far the most expensive to produce; QR codes are nearly free.
var baseCost = map[ContentType]float64{
	ContentTypePodcastAudio:  5.0,
	ContentTypeVideoIntro:    10.0,
	ContentTypePortfolioPDF:  2.0,
	ContentTypeQRCode:        0.5,
	ContentTypeHeadshotImage: 3.0,
}

// estimatedDuration is the expected wall-clock generation time by content
// type, used for scheduling weight and watchdog sizing.
var estimatedDuration = map[ContentType]time.Duration{
	ContentTypePodcastAudio:  90 * time.Second,
	ContentTypeVideoIntro:    180 * time.Second,
	ContentTypePortfolioPDF:  30 * time.Second,
	ContentTypeQRCode:        5 * time.Second,
	ContentTypeHeadshotImage: 60 * time.Second,
}

// BaseCost returns the credit cost of generating one item of the given type.
// Unknown types cost the same as the cheapest known type.
func BaseCost(c ContentType) float64 {
	if v, ok := baseCost[c]; ok {
		return v
	}
	return 0.5
}

// EstimatedDuration returns the expected generation time for the given type.
func EstimatedDuration(c ContentType) time.Duration {
	if v, ok := estimatedDuration[c]; ok {
		return v
	}
	return 60 * time.Second
}

package config

import "github.com/afrikoin/likeledger/pkg/credits"

// DefaultPacks returns the shipped like-pack catalog.
func DefaultPacks() []credits.Pack {
	return []credits.Pack{
		{ProductID: "com.afrikoin.likes_1000", Name: "Pack Starter", Credits: 1000, PriceCents: 999},
		{ProductID: "com.afrikoin.likes_5000", Name: "Pack Pro", Credits: 5000, PriceCents: 3999},
		{ProductID: "com.afrikoin.likes_10000", Name: "Pack Premium", Credits: 10000, PriceCents: 6999},
	}
}

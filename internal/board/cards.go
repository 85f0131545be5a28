package board

import "math/rand/v2"

// DeckKind 牌堆種類
type DeckKind string

const (
	DeckChance         DeckKind = "chance"
	DeckCommunityChest DeckKind = "community_chest"
)

// CardEffect 卡片效果
type CardEffect string

const (
	CardCollect         CardEffect = "collect"
	CardPay             CardEffect = "pay"
	CardCollectFromEach CardEffect = "collect_from_each"
	CardPayEach         CardEffect = "pay_each"
	CardMoveTo          CardEffect = "move_to"
	CardNearestRailroad CardEffect = "nearest_railroad"
	CardNearestUtility  CardEffect = "nearest_utility"
	CardMoveBack        CardEffect = "move_back"
	CardGoToJail        CardEffect = "go_to_jail"
	CardJailFree        CardEffect = "jail_free"
	CardRepairs         CardEffect = "repairs"
)

// Card 一張機會或命運卡
type Card struct {
	Text     string     `json:"text"`
	Effect   CardEffect `json:"effect"`
	Value    int        `json:"value,omitempty"`
	PerHouse int        `json:"per_house,omitempty"`
	PerHotel int        `json:"per_hotel,omitempty"`
}

// ChanceCards 機會卡（16 張）
var ChanceCards = []Card{
	{Text: "Advance to Go.", Effect: CardMoveTo, Value: GoPosition},
	{Text: "Advance to Rose Court. Collect the Go bonus if you pass Go.", Effect: CardMoveTo, Value: 11},
	{Text: "Go back three spaces.", Effect: CardMoveBack, Value: 3},
	{Text: "Take a trip to North Station. Collect the Go bonus if you pass Go.", Effect: CardMoveTo, Value: 5},
	{Text: "You won a lottery. Collect 50.", Effect: CardCollect, Value: 50},
	{Text: "Your building loan matures. Collect 100.", Effect: CardCollect, Value: 100},
	{Text: "You find an old bond. Collect 25.", Effect: CardCollect, Value: 25},
	{Text: "Get out of jail free. Keep this card until needed.", Effect: CardJailFree},
	{Text: "Advance to the nearest station. Pay the owner twice the rent.", Effect: CardNearestRailroad},
	{Text: "Advance to the nearest station. Pay the owner twice the rent.", Effect: CardNearestRailroad},
	{Text: "Advance to the nearest utility. Pay the owner ten times the dice.", Effect: CardNearestUtility},
	{Text: "Speeding fine. Pay 75.", Effect: CardPay, Value: 75},
	{Text: "You have been elected chairman. Pay each player 50.", Effect: CardPayEach, Value: 50},
	{Text: "Storm damage. Pay 100.", Effect: CardPay, Value: 100},
	{Text: "General repairs: pay 25 per house and 100 per hotel.", Effect: CardRepairs, PerHouse: 25, PerHotel: 100},
	{Text: "Go directly to jail. Do not pass Go.", Effect: CardGoToJail},
}

// CommunityChestCards 命運卡（16 張）
var CommunityChestCards = []Card{
	{Text: "Advance to Go.", Effect: CardMoveTo, Value: GoPosition},
	{Text: "Bank error in your favour. Collect 75.", Effect: CardCollect, Value: 75},
	{Text: "From sale of stock you get 50.", Effect: CardCollect, Value: 50},
	{Text: "You win a prize. Collect 100.", Effect: CardCollect, Value: 100},
	{Text: "Tax refund. Collect 50.", Effect: CardCollect, Value: 50},
	{Text: "Consultancy fee. Collect 25.", Effect: CardCollect, Value: 25},
	{Text: "It is your birthday. Collect 10 from every player.", Effect: CardCollectFromEach, Value: 10},
	{Text: "Get out of jail free. Keep this card until needed.", Effect: CardJailFree},
	{Text: "Doctor's fee. Pay 50.", Effect: CardPay, Value: 50},
	{Text: "Hospital fees. Pay 100.", Effect: CardPay, Value: 100},
	{Text: "School fees. Pay 75.", Effect: CardPay, Value: 75},
	{Text: "Broken window. Pay 50.", Effect: CardPay, Value: 50},
	{Text: "Traffic fine. Pay 100.", Effect: CardPay, Value: 100},
	{Text: "Storage fees. Pay 25.", Effect: CardPay, Value: 25},
	{Text: "Street repairs: pay 40 per house and 115 per hotel.", Effect: CardRepairs, PerHouse: 40, PerHotel: 115},
	{Text: "Go directly to jail. Do not pass Go.", Effect: CardGoToJail},
}

// CardAt 依牌堆與索引取卡
func CardAt(deck DeckKind, index int) (Card, bool) {
	cards := ChanceCards
	if deck == DeckCommunityChest {
		cards = CommunityChestCards
	}
	if index < 0 || index >= len(cards) {
		return Card{}, false
	}
	return cards[index], true
}

// shuffleDecks 以種子決定性洗牌
func shuffleDecks(seed uint64) *Decks {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Decks{
		Chance:         shuffled(rng, len(ChanceCards)),
		CommunityChest: shuffled(rng, len(CommunityChestCards)),
	}
}

func shuffled(rng *rand.Rand, n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// pile 取得對應牌堆
func (d *Decks) pile(kind DeckKind) *[]int {
	if kind == DeckCommunityChest {
		return &d.CommunityChest
	}
	return &d.Chance
}

// draw 從牌堆頂抽一張；非保留卡放回底部
func (d *Decks) draw(kind DeckKind) (int, Card) {
	pile := d.pile(kind)
	idx := (*pile)[0]
	card, _ := CardAt(kind, idx)
	rest := (*pile)[1:]
	if card.Effect == CardJailFree {
		*pile = append([]int{}, rest...)
	} else {
		*pile = append(append([]int{}, rest...), idx)
	}
	return idx, card
}

// putBack 出獄卡用掉或隨破產歸還時放回底部
func (d *Decks) putBack(c JailCard) {
	pile := d.pile(c.Deck)
	*pile = append(*pile, c.Index)
}

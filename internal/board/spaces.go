package board

// SpaceKind 格子種類
type SpaceKind string

const (
	SpaceGo             SpaceKind = "go"
	SpaceStreet         SpaceKind = "street"
	SpaceRailroad       SpaceKind = "railroad"
	SpaceUtility        SpaceKind = "utility"
	SpaceTax            SpaceKind = "tax"
	SpaceChance         SpaceKind = "chance"
	SpaceCommunityChest SpaceKind = "community_chest"
	SpaceJail           SpaceKind = "jail"
	SpaceFreeParking    SpaceKind = "free_parking"
	SpaceGoToJail       SpaceKind = "go_to_jail"
)

// 特殊位置
const (
	BoardSize     = 40
	GoPosition    = 0
	JailPosition  = 10
	GoToJailSpace = 30
)

// Space 棋盤上的一格
type Space struct {
	Position  int       `json:"position"`
	Name      string    `json:"name"`
	Kind      SpaceKind `json:"kind"`
	Group     string    `json:"group,omitempty"`
	Price     int       `json:"price,omitempty"`
	Rent      [6]int    `json:"rent,omitempty"` // 空地、1~4 棟房屋、旅館
	HouseCost int       `json:"house_cost,omitempty"`
	Tax       int       `json:"tax,omitempty"`
}

// Ownable 可被購買
func (sp Space) Ownable() bool {
	return sp.Kind == SpaceStreet || sp.Kind == SpaceRailroad || sp.Kind == SpaceUtility
}

// MortgageValue 抵押可得金額
func (sp Space) MortgageValue() int {
	return sp.Price / 2
}

// UnmortgageCost 贖回成本：抵押金額加 10%（無條件進位）
func (sp Space) UnmortgageCost() int {
	m := sp.MortgageValue()
	return m + (m+9)/10
}

func street(pos int, name, group string, price, house int, rent [6]int) Space {
	return Space{Position: pos, Name: name, Kind: SpaceStreet, Group: group, Price: price, HouseCost: house, Rent: rent}
}

func railroad(pos int, name string) Space {
	return Space{Position: pos, Name: name, Kind: SpaceRailroad, Group: "railroad", Price: 200}
}

func utility(pos int, name string) Space {
	return Space{Position: pos, Name: name, Kind: SpaceUtility, Group: "utility", Price: 150}
}

// Spaces 經典 40 格棋盤
var Spaces = [BoardSize]Space{
	{Position: 0, Name: "Go", Kind: SpaceGo},
	street(1, "Harbor Lane", "brown", 60, 50, [6]int{2, 10, 30, 90, 160, 250}),
	{Position: 2, Name: "Community Chest", Kind: SpaceCommunityChest},
	street(3, "Mill Road", "brown", 60, 50, [6]int{4, 20, 60, 180, 320, 450}),
	{Position: 4, Name: "Income Tax", Kind: SpaceTax, Tax: 200},
	railroad(5, "North Station"),
	street(6, "Elm Street", "light_blue", 100, 50, [6]int{6, 30, 90, 270, 400, 550}),
	{Position: 7, Name: "Chance", Kind: SpaceChance},
	street(8, "Oak Avenue", "light_blue", 100, 50, [6]int{6, 30, 90, 270, 400, 550}),
	street(9, "Pine Avenue", "light_blue", 120, 50, [6]int{8, 40, 100, 300, 450, 600}),
	{Position: 10, Name: "Jail", Kind: SpaceJail},
	street(11, "Rose Court", "pink", 140, 100, [6]int{10, 50, 150, 450, 625, 750}),
	utility(12, "Power Plant"),
	street(13, "Lily Court", "pink", 140, 100, [6]int{10, 50, 150, 450, 625, 750}),
	street(14, "Tulip Court", "pink", 160, 100, [6]int{12, 60, 180, 500, 700, 900}),
	railroad(15, "East Station"),
	street(16, "Copper Place", "orange", 180, 100, [6]int{14, 70, 200, 550, 750, 950}),
	{Position: 17, Name: "Community Chest", Kind: SpaceCommunityChest},
	street(18, "Bronze Place", "orange", 180, 100, [6]int{14, 70, 200, 550, 750, 950}),
	street(19, "Brass Place", "orange", 200, 100, [6]int{16, 80, 220, 600, 800, 1000}),
	{Position: 20, Name: "Free Parking", Kind: SpaceFreeParking},
	street(21, "Maple Drive", "red", 220, 150, [6]int{18, 90, 250, 700, 875, 1050}),
	{Position: 22, Name: "Chance", Kind: SpaceChance},
	street(23, "Cedar Drive", "red", 220, 150, [6]int{18, 90, 250, 700, 875, 1050}),
	street(24, "Birch Drive", "red", 240, 150, [6]int{20, 100, 300, 750, 925, 1100}),
	railroad(25, "South Station"),
	street(26, "Sunset Boulevard", "yellow", 260, 150, [6]int{22, 110, 330, 800, 975, 1150}),
	street(27, "Sunrise Boulevard", "yellow", 260, 150, [6]int{22, 110, 330, 800, 975, 1150}),
	utility(28, "Water Works"),
	street(29, "Horizon Gardens", "yellow", 280, 150, [6]int{24, 120, 360, 850, 1025, 1200}),
	{Position: 30, Name: "Go To Jail", Kind: SpaceGoToJail},
	street(31, "Summit Road", "green", 300, 200, [6]int{26, 130, 390, 900, 1100, 1275}),
	street(32, "Ridge Road", "green", 300, 200, [6]int{26, 130, 390, 900, 1100, 1275}),
	{Position: 33, Name: "Community Chest", Kind: SpaceCommunityChest},
	street(34, "Peak Road", "green", 320, 200, [6]int{28, 150, 450, 1000, 1200, 1400}),
	railroad(35, "West Station"),
	{Position: 36, Name: "Chance", Kind: SpaceChance},
	street(37, "Crown Plaza", "dark_blue", 350, 200, [6]int{35, 175, 500, 1100, 1300, 1500}),
	{Position: 38, Name: "Luxury Tax", Kind: SpaceTax, Tax: 100},
	street(39, "Royal Promenade", "dark_blue", 400, 200, [6]int{50, 200, 600, 1400, 1700, 2000}),
}

// SpaceAt 取得格子；越界回傳 false
func SpaceAt(pos int) (Space, bool) {
	if pos < 0 || pos >= BoardSize {
		return Space{}, false
	}
	return Spaces[pos], true
}

// groupMembers 同色組所有位置
func groupMembers(group string) []int {
	var out []int
	for _, sp := range Spaces {
		if sp.Group == group {
			out = append(out, sp.Position)
		}
	}
	return out
}

// nextOfKind 從 pos 往前找最近的指定種類格子
func nextOfKind(pos int, kind SpaceKind) int {
	for i := 1; i <= BoardSize; i++ {
		p := (pos + i) % BoardSize
		if Spaces[p].Kind == kind {
			return p
		}
	}
	return pos
}

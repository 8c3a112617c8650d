package keywords

var defaultSearch = []string{
	// buyers asking directly
	"looking for artist",
	"need to comm",
	"looking to commission",
	"looking to comm",
	"need artist",
	"artist to commission",
	"artist to comm",
	"want to commission",
	"wanna commission",
	"wanna comm",
	"need to commission",
	"need art",
	"anyone know any artist",
	"any artist",
	"going to commission",
	"gotta commission",
	"gotta comm",
	"going to comm",
	"hiring artist",
	"someone to commission",
	"someone to comm",

	"need 3d model",
	"want 3d model",
	"3d model",

	"need to get art",
	"wanting to commission",
	"need to hire artist",
	"any artist out there",
	"need to find artist",
	"willing to commission",
	"willing to comm",
	"willing to get art",
	"can someone draw",

	// asking who is open
	"anyone has commissions open",
	"anyone open for commissions",
	"anyone open for comms",
	"anyone has comms open",
	"anybody open for commissions",
	"anybody open for comms",
	"anybody has commissions open",
	"anybody has comms open",
	"who got commissions open",
	"who got comms open",
	"who is open for commissions",
	"who is open for comms",

	"need model",
	"need vtuber",
	"need thumbnail",
	"need emotes",

	"artist call",
	"who to commission",
	"who to comm",
	"finding artist",
	"tryna find artist",
	"trying to find artist",
	"artist hunt",
	"hunting artist",
	"do you know any artist",
	"name your artists",
	"who draws",

	"if you're an artist",
	"if you're a artist",
	"if you are an artist",
	"if you are artist",

	"need drawn",
	"want drawn",
	"who does art",
	"who does commissions",
	"who does comms",
	"commissioning artist",
	"be commissioning",
	"might commission",
	"might comm",
	"might be commissioning",

	"seeking artist",
	"seeking animator",

	"pixel artist",
	"looking for animator",
	"need animator",
	"any animator",
	"background artist",

	"need art done",
	"need animation done",
	"need rigger",
	"need rigging",
	"any rigger",
	"need rigging done",

	// streaming
	"vtuber",
	"vrc avatar",
	"vrchat avatar",
	"pngtuber",

	"need chibi",
	"need banner",
	"need logo",
	"reference sheet",
	"need animation",
}

var defaultBuyer = []string{
	"looking for artist", "looking to commission", "looking to comm",
	"need artist", "need to commission", "want to commission", "wanna commission",
	"hiring artist", "seeking artist", "seeking animator",
	"someone to commission", "someone to comm", "anyone know an artist",
	"need to find artist", "trying to find artist", "might commission",
	"going to commission", "willing to commission", "can someone draw",
	"need drawn", "want drawn",
}

var defaultSeller = []string{
	"commissions open", "comms open", "work slots open", "slots open",
	"available services", "taking commissions", "my commissions", "my comms",
	"my rates", "price sheet", "commission sheet", "portfolio",
	"check my portfolio", "vgen", "ko-fi", "gumroad",
	"finished commission", "completed commission", "i did for", "i made for",
}

var defaultInjection = []string{
	"ignore previous", "new instructions", "system:", "assistant:",
	"ignore all", "forget everything", "override", "disregard",
	"you are now", "new role", "act as", "jailbreak",
}

var defaultHighRisk = []string{
	"ignore previous instructions", "system: you are", "forget your role",
}

var defaultSelfPromotion = []string{
	"my commissions", "my comms", "my work", "my art",
	"i offer", "dm me for", "message me for",
}

package graphql

const (
	infoFields      = `info { count pages next prev }`
	characterFields = `id name status species type gender origin { id name } location { id name } image episode { id } created`
	locationFields  = `id name type dimension residents { id name } created`
)

// Operation names sent as operationName.
const (
	OpCharacters   = "GetCharacters"
	OpLocations    = "GetLocations"
	OpCharacter    = "GetCharacter"
	OpLocation     = "GetLocation"
	OpAllData      = "GetAllData"
	OpCombinedPage = "GetCombinedPage"
)

var (
	charactersQuery = `query GetCharacters($page: Int) {
  characters(page: $page) { ` + infoFields + ` results { ` + characterFields + ` } }
}`

	locationsQuery = `query GetLocations($page: Int) {
  locations(page: $page) { ` + infoFields + ` results { ` + locationFields + ` } }
}`

	characterQuery = `query GetCharacter($id: ID!) {
  character(id: $id) { ` + characterFields + ` }
}`

	locationQuery = `query GetLocation($id: ID!) {
  location(id: $id) { ` + locationFields + ` }
}`

	// allDataQuery fetches the first page of both resources in one request.
	allDataQuery = `query GetAllData {
  characters(page: 1) { ` + infoFields + ` results { ` + characterFields + ` } }
  locations(page: 1) { ` + infoFields + ` results { ` + locationFields + ` } }
}`

	combinedPageQuery = `query GetCombinedPage($charPage: Int, $locPage: Int) {
  characters(page: $charPage) { ` + infoFields + ` results { ` + characterFields + ` } }
  locations(page: $locPage) { ` + infoFields + ` results { ` + locationFields + ` } }
}`
)
